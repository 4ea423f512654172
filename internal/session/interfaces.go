package session

import "github.com/Jakuje/oseid/internal/keystore"

// FileSystem is the subset of keystore.Store the processor consults for
// file selection, metadata, directory/identity queries, PIN state, and
// lifecycle (spec.md §6 fs_* calls, §4.9 GET DATA/PUT DATA, supplemented
// ACTIVATE APPLET). Defined here, on the consumer side, so tests can
// supply a fake; a fake still imports keystore for the Lifecycle type.
type FileSystem interface {
	Selected() uint16
	FileType(id uint16) (byte, error)
	FileSize(id uint16) (int, error)
	AccessCondition(id uint16) (byte, error)
	CreateFile(id uint16, fileType byte, sizeBits int, accessCondition byte) error
	ListFiles() ([]byte, error)
	CardID() []byte
	CardCapabilities() []byte

	Lifecycle() (keystore.Lifecycle, error)
	InitializeApplet() error
	EraseCard() error

	PINInfo(ref byte) ([]byte, error)
	InitializePIN(ref byte, value []byte) error
	VerifyPIN(ref byte, value []byte) (bool, error)
}

// KeyStore is the subset of keystore.Store the processor consults for key
// material (spec.md §6 fs_key_read_part / fs_key_write_part).
type KeyStore interface {
	ReadPart(fileID uint16, part byte) ([]byte, error)
	WritePart(fileID uint16, part byte, data []byte) error
}
