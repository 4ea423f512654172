package keystore

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DefaultPINMaxTries is used when a PIN is initialized without an explicit
// retry budget.
const DefaultPINMaxTries = 3

// PINInfo returns the GET DATA 0xB0..0xBF payload for PIN ref (low nibble of
// P2): initialized flag, tries-left, max-tries (spec.md §4.9).
func (s *Store) PINInfo(ref byte) ([]byte, error) {
	var row pinRecord
	err := s.db.First(&row, ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []byte{0x00, 0x00, 0x00}, nil // uninitialized
	}
	if err != nil {
		return nil, err
	}
	initFlag := byte(0)
	if row.Initialized {
		initFlag = 1
	}
	return []byte{initFlag, byte(row.TriesLeft), byte(row.MaxTries)}, nil
}

// InitializePIN is PUT DATA P2 in [0x01,0x0E]: sets the PIN's reference
// value and resets its try counter (fs_initialize_pin). value is opaque PIN
// material handed to the file system; this store does not interpret it
// beyond recording that the slot is now initialized.
func (s *Store) InitializePIN(ref byte, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("keystore: empty PIN value")
	}
	if err := s.WritePart(0, 0xF0|ref, value); err != nil {
		return err
	}
	row := pinRecord{Ref: ref, Initialized: true, TriesLeft: DefaultPINMaxTries, MaxTries: DefaultPINMaxTries}
	return s.db.Save(&row).Error
}

// VerifyPIN checks value against the stored PIN material for ref,
// decrementing the try counter on mismatch and resetting it on success.
func (s *Store) VerifyPIN(ref byte, value []byte) (bool, error) {
	var row pinRecord
	if err := s.db.First(&row, ref).Error; err != nil {
		return false, fmt.Errorf("keystore: PIN %d not initialized", ref)
	}
	if row.TriesLeft == 0 {
		return false, fmt.Errorf("keystore: PIN %d blocked", ref)
	}
	stored, err := s.ReadPart(0, 0xF0|ref)
	if err != nil {
		return false, err
	}
	if bytesEqual(stored, value) {
		row.TriesLeft = row.MaxTries
		return true, s.db.Save(&row).Error
	}
	row.TriesLeft--
	return false, s.db.Save(&row).Error
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
