package ecparam

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/Jakuje/oseid/internal/constants"
)

// secp256k1Curve binds OsEID's proprietary secp256k1 file type (0x23) to the
// SEC2 domain parameters, reusing the decred library's table instead of
// hand-copying the constants (spec.md §4.5: "select secp256k1" when file
// type is 0x23).
func secp256k1Curve(privateScalar []byte) (*Curve, error) {
	if len(privateScalar) != constants.CurveSecp256k1.ScalarSize() {
		return nil, errUnsupportedCurve(len(privateScalar))
	}
	p := secp256k1.Params()
	return &Curve{
		Tag:     constants.CurveSecp256k1,
		P:       p.P,
		N:       p.N,
		A:       big.NewInt(0),
		B:       p.B,
		Gx:      p.Gx,
		Gy:      p.Gy,
		AIsZero: true,
	}, nil
}
