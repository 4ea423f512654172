package cryptofmt

import (
	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/kernel"
)

// SymmetricRun implements the symmetric cipher path (spec.md §4.7): selects
// DES or AES by key-file type, enforces the block length, and runs exactly
// one block.
func SymmetricRun(fileType byte, key, block []byte, encrypt bool) ([]byte, error) {
	switch fileType {
	case constants.FileTypeDES:
		if len(block) != constants.DESBlockSize {
			return nil, &apdu.StatusError{SW: apdu.SWWrongLength, Note: "DES block must be 8 bytes"}
		}
		return kernel.DESRun(key, block, encrypt)

	case constants.FileTypeAES:
		if len(block) != constants.AESBlockSize {
			return nil, &apdu.StatusError{SW: apdu.SWWrongLength, Note: "AES block must be 16 bytes"}
		}
		return kernel.AESRun(key, block, encrypt)

	default:
		return nil, &apdu.StatusError{SW: apdu.SWIncorrectFileType}
	}
}
