package cryptofmt

import (
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/Jakuje/oseid/internal/apdu"
	"github.com/Jakuje/oseid/internal/ecparam"
	"github.com/Jakuje/oseid/internal/kernel"
)

// SignECRaw implements sign_ec_raw (spec.md §4.4): truncates/pads hash to
// the curve's scalar size, invokes the ECDSA kernel, and DER-encodes the
// result as SEQUENCE { INTEGER r, INTEGER s }.
//
// DER encoding is delegated to golang.org/x/crypto/cryptobyte, the same
// low-level ASN.1 builder the Go standard library's own crypto/ecdsa and
// crypto/x509 packages use for this exact structure — it always emits
// strictly minimal DER (leading 0x00 iff the high bit is set, long-form
// outer length only when the payload needs it), which is the behavior
// spec.md §4.4 recommends over the source's documented 521-bit simplification.
func SignECRaw(curve *ecparam.Curve, priv *big.Int, hash []byte) ([]byte, error) {
	scalarSize := curve.ScalarSize()
	truncated := truncateOrPad(hash, scalarSize)

	r, s, err := kernel.ECDSASign(curve, priv, truncated)
	if err != nil {
		return nil, &apdu.StatusError{SW: apdu.SWConditionsNotSat, Note: "ecdsa kernel failure"}
	}

	var b cryptobyte.Builder
	b.AddASN1(casn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// truncateOrPad implements the "truncate/zero-pad hash to curve scalar
// size" step of spec.md §4.4.
func truncateOrPad(hash []byte, size int) []byte {
	if len(hash) == size {
		return hash
	}
	if len(hash) > size {
		return hash[:size]
	}
	out := make([]byte, size)
	copy(out[size-len(hash):], hash)
	return out
}
