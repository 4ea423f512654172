// Package cryptofmt is the formatter layer of the card processor: it
// prepares and interprets the byte layouts spec.md §4 names (rsa_raw,
// sign_ec_raw, the ECDH responder, and the symmetric cipher path) and
// drives the arithmetic kernels in internal/kernel. Big numbers cross this
// layer's boundary as big-endian byte slices / *big.Int, per spec.md §9's
// BigNum re-architecture guidance — there is no little-endian working
// buffer here, since that dance was a memory-budget artifact of the
// 8-bit original (spec.md §9), not a semantic requirement.
package cryptofmt

import (
	"math/big"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/constants"
	"github.com/Jakuje/oseid/internal/kernel"
)

// RSAFlag selects the padding rsa_raw applies before invoking the kernel.
type RSAFlag byte

const (
	RSAFlagRaw        RSAFlag = 0 // message already fills the modulus
	RSAFlagDigestInfo RSAFlag = 2 // message already carries a DigestInfo prefix
	RSAFlagSHA1       RSAFlag = 1 // message is a bare 20-byte SHA-1 digest
)

// minPadBytes is the minimum number of 0xFF padding bytes PKCS#1 v1.5 type 1
// requires (spec.md §4.3, §8).
const minPadBytes = 8

// RSARaw implements rsa_raw (spec.md §4.3): pads msg per flag, invokes the
// RSA kernel, and returns the big-endian result sized to the modulus. On
// kernel failure both the message and a zeroed result are discarded and
// 0x6985 is reported, matching the "zeroize on RSA failure" requirement of
// spec.md §5/§7.
func RSARaw(key *kernel.RSAPrivateCRT, msg []byte, flag RSAFlag) ([]byte, error) {
	modLen := key.ModulusBytes()

	padded, err := padForFlag(msg, flag, modLen)
	if err != nil {
		return nil, err
	}

	c := new(big.Int).SetBytes(padded)
	m, err := key.Exec(c)
	if err != nil {
		zeroize(padded)
		return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "rsa kernel failure"}
	}

	out := make([]byte, modLen)
	m.FillBytes(out)
	return out, nil
}

func padForFlag(msg []byte, flag RSAFlag, modLen int) ([]byte, error) {
	switch flag {
	case RSAFlagRaw:
		if len(msg) != modLen {
			return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "raw message length != modulus size"}
		}
		out := make([]byte, modLen)
		copy(out, msg)
		return out, nil

	case RSAFlagSHA1:
		if len(msg) != 20 {
			return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "SHA-1 digest must be 20 bytes"}
		}
		digestInfo := make([]byte, 0, len(constants.SHA1DigestInfoPrefix)+20)
		digestInfo = append(digestInfo, constants.SHA1DigestInfoPrefix...)
		digestInfo = append(digestInfo, msg...)
		return pkcs1Type1(digestInfo, modLen)

	case RSAFlagDigestInfo:
		return pkcs1Type1(msg, modLen)

	default:
		return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "unsupported sign_algo"}
	}
}

// pkcs1Type1 builds 00 01 FF..FF 00 <data>, failing if fewer than
// minPadBytes of 0xFF would fit (spec.md §4.3).
func pkcs1Type1(data []byte, modLen int) ([]byte, error) {
	if len(data)+3+minPadBytes > modLen {
		return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "message too long for modulus"}
	}
	out := make([]byte, modLen)
	out[0] = 0x00
	out[1] = 0x01
	padLen := modLen - len(data) - 3
	for i := 0; i < padLen; i++ {
		out[2+i] = 0xFF
	}
	out[2+padLen] = 0x00
	copy(out[3+padLen:], data)
	return out, nil
}

// RSADecryptUnwrap validates and strips PKCS#1 v1.5 type-2 padding from a
// decrypted RSA block, required only when sign_algo=0x02 (spec.md §4.3,
// §8). Returns the payload, or 0x6985 if the padding is malformed or has
// fewer than 8 non-zero padding bytes.
func RSADecryptUnwrap(block []byte) ([]byte, error) {
	if len(block) < 11 || block[0] != 0x00 || block[1] != 0x02 {
		return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "bad PKCS#1 type-2 header"}
	}
	i := 2
	for i < len(block) && block[i] != 0x00 {
		i++
	}
	padLen := i - 2
	if i >= len(block) || padLen < minPadBytes {
		return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "bad PKCS#1 type-2 padding"}
	}
	return block[i+1:], nil
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
