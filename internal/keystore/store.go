// Package keystore is the file-system boundary spec.md §6 treats as an
// external collaborator: file selection, key-part storage, PIN state, and
// lifecycle, all referenced only through the fs_* calls the card processor
// makes. Key parts live as individual hex files (teacher's convention,
// pkg/ntag424/keys.go LoadKeyHexFile); file/PIN/lifecycle metadata lives in
// a small sqlite database via gorm, since that state is relational and
// queried by id rather than streamed as key bytes.
package keystore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the concrete file-system boundary implementation.
type Store struct {
	baseDir  string
	db       *gorm.DB
	selected uint16
	cardID   []byte
}

// Open opens (creating if absent) a key store rooted at dir.
func Open(dir string) (*Store, error) {
	partsDir := filepath.Join(dir, "parts")
	if err := os.MkdirAll(partsDir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create parts dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "state.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: open state db: %w", err)
	}
	if err := db.AutoMigrate(&fileRecord{}, &pinRecord{}, &lifecycleRecord{}); err != nil {
		return nil, fmt.Errorf("keystore: migrate state db: %w", err)
	}

	s := &Store{baseDir: dir, db: db}
	if err := s.ensureLifecycleRow(); err != nil {
		return nil, err
	}
	if err := s.ensureCardID(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureLifecycleRow() error {
	var row lifecycleRecord
	err := s.db.First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&lifecycleRecord{ID: 1, State: byte(LifecycleUninitialized)}).Error
	}
	return err
}

func (s *Store) ensureCardID() error {
	path := filepath.Join(s.baseDir, "card-id.hex")
	if b, err := readHexFile(path); err == nil && len(b) == 20 {
		s.cardID = b
		return nil
	}
	id := make([]byte, 20)
	if err := writeHexFile(path, id); err != nil {
		return err
	}
	s.cardID = id
	return nil
}

// Selected returns the currently selected file id (fs_get_selected).
func (s *Store) Selected() uint16 { return s.selected }

// SetSelected records the file id the transport layer has selected; file
// selection (ISO SELECT FILE) is outside this module's command table and is
// driven by the external transport/file-system collaborator per spec.md §6.
func (s *Store) SetSelected(id uint16) { s.selected = id }

// FileType returns the file type byte for id (fs_get_file_type).
func (s *Store) FileType(id uint16) (byte, error) {
	rec, err := s.file(id)
	if err != nil {
		return 0, err
	}
	return rec.Type, nil
}

// FileSize returns the declared key size in bits for id (fs_get_file_size).
func (s *Store) FileSize(id uint16) (int, error) {
	rec, err := s.file(id)
	if err != nil {
		return 0, err
	}
	return rec.SizeBits, nil
}

// AccessCondition returns the 1-byte access condition of file id (GET DATA
// 0xAC).
func (s *Store) AccessCondition(id uint16) (byte, error) {
	rec, err := s.file(id)
	if err != nil {
		return 0, err
	}
	return rec.AccessCondition, nil
}

func (s *Store) file(id uint16) (*fileRecord, error) {
	var rec fileRecord
	if err := s.db.First(&rec, id).Error; err != nil {
		return nil, fmt.Errorf("keystore: file %04X: %w", id, ErrFileNotFound)
	}
	return &rec, nil
}

// CreateFile registers a new addressable file, used by the provisioning
// flows of the genkey and importkey subcommands in cmd/oseidsim.
func (s *Store) CreateFile(id uint16, fileType byte, sizeBits int, accessCondition byte) error {
	rec := fileRecord{ID: id, Type: fileType, SizeBits: sizeBits, AccessCondition: accessCondition}
	return s.db.Save(&rec).Error
}

// ListFiles returns the raw file id/type listing for the GET DATA 0xA1-0xA6
// range, forwarded to the file system unchanged per spec.md §4.9.
func (s *Store) ListFiles() ([]byte, error) {
	var recs []fileRecord
	if err := s.db.Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(recs)*3)
	for _, r := range recs {
		out = append(out, byte(r.ID>>8), byte(r.ID), r.Type)
	}
	return out, nil
}

// CardID returns the 20-byte card identity (GET DATA 0xA0).
func (s *Store) CardID() []byte { return s.cardID }

// CardCapabilities returns the 11-byte card capabilities descriptor (GET
// DATA 0xAA); this implementation reports a fixed, conservative profile.
func (s *Store) CardCapabilities() []byte {
	return []byte{0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// ReadPart reads a key part for fileID (fs_key_read_part).
func (s *Store) ReadPart(fileID uint16, part byte) ([]byte, error) {
	return readHexFile(s.partPath(fileID, part))
}

// WritePart writes a key part for fileID (fs_key_write_part).
func (s *Store) WritePart(fileID uint16, part byte, data []byte) error {
	dir := filepath.Join(s.baseDir, "parts", fmt.Sprintf("%04X", fileID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return writeHexFile(s.partPath(fileID, part), data)
}

func (s *Store) partPath(fileID uint16, part byte) string {
	return filepath.Join(s.baseDir, "parts", fmt.Sprintf("%04X", fileID), fmt.Sprintf("%02X.hex", part))
}

// ErrFileNotFound is returned by lookups against an unregistered file id.
var ErrFileNotFound = errors.New("file not found")

// DebugDump renders the store's file table as hex strings (mirrors the
// teacher's diag.go debug helpers). No CLI subcommand calls it.
func (s *Store) DebugDump() (string, error) {
	listing, err := s.ListFiles()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(listing), nil
}
