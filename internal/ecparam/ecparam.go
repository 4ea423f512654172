// Package ecparam is the curve-parameter binder (spec.md §4.5,
// prepare_ec_param): given a selected EC key file it materializes the curve
// parameters into a working Curve value. The private scalar only selects the
// curve by its length; it is not stored in the Curve.
package ecparam

import (
	"math/big"

	"github.com/Jakuje/oseid/internal/constants"
)

// Curve is the bound working structure handed to the EC kernel: prime,
// order, coefficients and generator, in the orientation the kernel expects.
// The private scalar is passed to the kernel separately, as a *big.Int.
type Curve struct {
	Tag   constants.CurveTag
	P     *big.Int // field prime
	N     *big.Int // group order
	A, B  *big.Int // short Weierstrass coefficients: y^2 = x^3 + ax + b
	Gx, Gy *big.Int // generator

	// AIsNeg3 and AIsZero record the special-a hints spec.md §4.5 mentions.
	// internal/kernel/ec.go does not read them: its point doubling uses A
	// directly for every curve.
	AIsNeg3 bool
	AIsZero bool
}

// ScalarSize is the private-scalar / coordinate byte length for this curve.
func (c *Curve) ScalarSize() int { return c.Tag.ScalarSize() }

func hexInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("ecparam: bad constant " + s)
	}
	return n
}

// params is the constants table prepare_ec_param consults (spec.md §4.5,
// §6 get_constant). Values are the standard NIST P-192/256/384/521 domain
// parameters; secp256k1 is not in this table and is bound by secp256k1.go.
var params = map[constants.CurveTag]*Curve{
	constants.CurveP192: {
		Tag: constants.CurveP192,
		P:   hexInt("fffffffffffffffffffffffffffffffeffffffffffffffff"),
		N:   hexInt("ffffffffffffffffffffffff99def836146bc9b1b4d22831"),
		A:   hexInt("fffffffffffffffffffffffffffffffefffffffffffffffc"),
		B:   hexInt("64210519e59c80e70fa7e9ab72243049feb8deecc146b9b1"),
		Gx:  hexInt("188da80eb03090f67cbf20eb43a18800f4ff0afd82ff1012"),
		Gy:  hexInt("07192b95ffc8da78631011ed6b24cdd573f977a11e794811"),
		AIsNeg3: true,
	},
	constants.CurveP256: {
		Tag: constants.CurveP256,
		P:   hexInt("ffffffff00000001000000000000000000000000ffffffffffffffffffffffff"),
		N:   hexInt("ffffffff00000000ffffffffffffffffbce6faada7179e84f3b9cac2fc632551"),
		A:   hexInt("ffffffff00000001000000000000000000000000fffffffffffffffffffffffc"),
		B:   hexInt("5ac635d8aa3a93e7b3ebbd55769886bc651d06b0cc53b0f63bce3c3e27d2604b"),
		Gx:  hexInt("6b17d1f2e12c4247f8bce6e563a440f277037d812deb33a0f4a13945d898c296"),
		Gy:  hexInt("4fe342e2fe1a7f9b8ee7eb4a7c0f9e162bce33576b315ececbb6406837bf51f5"),
		AIsNeg3: true,
	},
	constants.CurveP384: {
		Tag: constants.CurveP384,
		P:   hexInt("fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffeffffffff0000000000000000ffffffff"),
		N:   hexInt("ffffffffffffffffffffffffffffffffffffffffffffffffc7634d81f4372ddf581a0db248b0a77aecec196accc52973"),
		A:   hexInt("fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffeffffffff0000000000000000fffffffc"),
		B:   hexInt("b3312fa7e23ee7e4988e056be3f82d19181d9c6efe8141120314088f5013875ac656398d8a2ed19d2a85c8edd3ec2aef"),
		Gx:  hexInt("aa87ca22be8b05378eb1c71ef320ad746e1d3b628ba79b9859f741e082542a385502f25dbf55296c3a545e3872760ab7"),
		Gy:  hexInt("3617de4a96262c6f5d9e98bf9292dc29f8f41dbd289a147ce9da3113b5f0b8c00a60b1ce1d7e819d7a431d7c90ea0e5f"),
		AIsNeg3: true,
	},
	constants.CurveP521: {
		Tag: constants.CurveP521,
		P:   hexInt("1ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
		N:   hexInt("1fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffa51868783bf2f966b7fcc0148f709a5d03bb5c9b8899c47aebb6fb71e91386409"),
		A:   hexInt("1fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffc"),
		B:   hexInt("051" + "953eb9618e1c9a1f929a21a0b68540eea2da725b99b315f3b8b489918ef109e156193951ec7e937b1652c0bd3bb1bf073573df883d2c34f1ef451fd46b503f00"),
		Gx:  hexInt("c6" + "858e06b70404e9cd9e3ecb662395b4429c648139053fb521f828af606b4d3dbaa14b5e77efe75928fe1dc127a2ffa8de3348b3c1856a429bf97e7e31c2e5bd66"),
		Gy:  hexInt("118" + "39296a789a3bc0045c8a5fb42c7d1bd998f54449579b446817afbd17273e662c97ee72995ef42640c550b9013fad0761353c7086a272c24088be94769fd16650"),
		AIsNeg3: true,
	},
}

// Bind resolves curve parameters for a private scalar of the given length,
// overriding to secp256k1 when the file type is OsEID's 0x23 (spec.md §4.5).
func Bind(fileType byte, privateScalar []byte) (*Curve, error) {
	if fileType == constants.FileTypeECSecp256k1 {
		return secp256k1Curve(privateScalar)
	}

	tag := constants.CurveByScalarSize(len(privateScalar))
	if tag == constants.CurveUnknown {
		return nil, errUnsupportedCurve(len(privateScalar))
	}
	base, ok := params[tag]
	if !ok {
		return nil, errUnsupportedCurve(len(privateScalar))
	}
	c := *base
	return &c, nil
}

func errUnsupportedCurve(scalarLen int) error {
	return &unsupportedCurveError{scalarLen: scalarLen}
}

type unsupportedCurveError struct{ scalarLen int }

func (e *unsupportedCurveError) Error() string {
	return "ecparam: no curve for private scalar length"
}
