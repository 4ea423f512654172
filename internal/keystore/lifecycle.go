package keystore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lifecycle returns the applet's current personalization state.
func (s *Store) Lifecycle() (Lifecycle, error) {
	var row lifecycleRecord
	if err := s.db.First(&row, 1).Error; err != nil {
		return 0, err
	}
	return Lifecycle(row.State), nil
}

// SetLifecycle transitions the applet's lifecycle state (fs_set_lifecycle).
// Only forward transitions are permitted.
func (s *Store) SetLifecycle(next Lifecycle) error {
	cur, err := s.Lifecycle()
	if err != nil {
		return err
	}
	if next < cur {
		return fmt.Errorf("keystore: cannot move lifecycle backwards from %d to %d", cur, next)
	}
	return s.db.Model(&lifecycleRecord{}).Where("id = ?", 1).Update("state", byte(next)).Error
}

// InitializeApplet is PUT DATA P2=0xE0 (spec.md §4.9): moves an
// uninitialized applet into Personalization. PIN init and key upload do not
// check the lifecycle state.
func (s *Store) InitializeApplet() error {
	cur, err := s.Lifecycle()
	if err != nil {
		return err
	}
	if cur != LifecycleUninitialized {
		return fmt.Errorf("keystore: applet already initialized")
	}
	return s.SetLifecycle(LifecyclePersonalization)
}

// EraseCard resets the applet to Uninitialized and removes all files, key
// parts and PIN state (fs_erase_card).
func (s *Store) EraseCard() error {
	if err := s.db.Where("1 = 1").Delete(&fileRecord{}).Error; err != nil {
		return err
	}
	if err := s.db.Where("1 = 1").Delete(&pinRecord{}).Error; err != nil {
		return err
	}
	partsDir := filepath.Join(s.baseDir, "parts")
	if err := os.RemoveAll(partsDir); err != nil {
		return err
	}
	if err := os.MkdirAll(partsDir, 0o700); err != nil {
		return err
	}
	s.selected = 0
	return s.SetLifecycleForce(LifecycleUninitialized)
}

// SetLifecycleForce sets lifecycle state unconditionally; used only by
// EraseCard, which legitimately moves backwards.
func (s *Store) SetLifecycleForce(state Lifecycle) error {
	return s.db.Model(&lifecycleRecord{}).Where("id = ?", 1).Update("state", byte(state)).Error
}
