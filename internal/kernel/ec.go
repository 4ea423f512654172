package kernel

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/Jakuje/oseid/internal/ecparam"
)

// ErrECFailed is the EC kernel's generic failure signal, returned by ECDH
// when the peer point is not on the curve or the shared point is the
// identity. ECDSASign retries internally and does not return it.
var ErrECFailed = errors.New("ec kernel: operation failed")

// point is an affine short-Weierstrass point; (nil, nil) is the identity.
type point struct{ X, Y *big.Int }

func isInfinity(p point) bool { return p.X == nil || p.Y == nil }

// double computes 2*p on curve c using the general affine doubling formula
// lambda = (3x^2+a) / (2y) mod p.
func double(c *ecparam.Curve, p point) point {
	if isInfinity(p) || p.Y.Sign() == 0 {
		return point{}
	}
	x2 := new(big.Int).Mul(p.X, p.X)
	num := new(big.Int).Mul(x2, big.NewInt(3))
	num.Add(num, c.A)
	num.Mod(num, c.P)

	den := new(big.Int).Lsh(p.Y, 1)
	den.Mod(den, c.P)
	den.ModInverse(den, c.P)

	lambda := new(big.Int).Mul(num, den)
	lambda.Mod(lambda, c.P)

	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, new(big.Int).Lsh(p.X, 1))
	x3.Mod(x3, c.P)

	y3 := new(big.Int).Sub(p.X, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, p.Y)
	y3.Mod(y3, c.P)

	return point{X: x3, Y: y3}
}

// add computes p+q on curve c.
func add(c *ecparam.Curve, p, q point) point {
	if isInfinity(p) {
		return q
	}
	if isInfinity(q) {
		return p
	}
	if p.X.Cmp(q.X) == 0 {
		if p.Y.Cmp(q.Y) != 0 {
			return point{} // p == -q
		}
		return double(c, p)
	}
	num := new(big.Int).Sub(q.Y, p.Y)
	den := new(big.Int).Sub(q.X, p.X)
	den.Mod(den, c.P)
	den.ModInverse(den, c.P)

	lambda := new(big.Int).Mul(num, den)
	lambda.Mod(lambda, c.P)

	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, p.X)
	x3.Sub(x3, q.X)
	x3.Mod(x3, c.P)

	y3 := new(big.Int).Sub(p.X, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, p.Y)
	y3.Mod(y3, c.P)

	return point{X: x3, Y: y3}
}

// scalarMult computes k*p via double-and-add, MSB first.
func scalarMult(c *ecparam.Curve, p point, k *big.Int) point {
	result := point{}
	for i := k.BitLen() - 1; i >= 0; i-- {
		result = double(c, result)
		if k.Bit(i) == 1 {
			result = add(c, result, p)
		}
	}
	return result
}

func mod(n, m *big.Int) *big.Int {
	r := new(big.Int).Mod(n, m)
	return r
}

// GenerateEC generates a random EC keypair on the given curve (spec.md §4.8
// ec_key_gener).
func GenerateEC(c *ecparam.Curve) (priv, pubX, pubY *big.Int, err error) {
	g := point{X: c.Gx, Y: c.Gy}
	for {
		d, err := rand.Int(rand.Reader, c.N)
		if err != nil {
			return nil, nil, nil, err
		}
		if d.Sign() == 0 {
			continue
		}
		pub := scalarMult(c, g, d)
		if isInfinity(pub) {
			continue
		}
		return d, pub.X, pub.Y, nil
	}
}

// ECDSASign computes (r, s) for hash over curve c with private scalar priv
// (ecdsa_sign). hash is truncated/left-padded to the curve order's bit
// length by the caller (internal/cryptofmt), per spec.md §4.4.
func ECDSASign(c *ecparam.Curve, priv *big.Int, hash []byte) (r, s *big.Int, err error) {
	z := new(big.Int).SetBytes(hash)
	if z.BitLen() > c.N.BitLen() {
		z.Rsh(z, uint(z.BitLen()-c.N.BitLen()))
	}
	g := point{X: c.Gx, Y: c.Gy}

	for {
		k, err := rand.Int(rand.Reader, c.N)
		if err != nil {
			return nil, nil, err
		}
		if k.Sign() == 0 {
			continue
		}
		R := scalarMult(c, g, k)
		if isInfinity(R) {
			continue
		}
		r = mod(R.X, c.N)
		if r.Sign() == 0 {
			continue
		}
		kInv := new(big.Int).ModInverse(k, c.N)
		if kInv == nil {
			continue
		}
		s = new(big.Int).Mul(r, priv)
		s.Add(s, z)
		s.Mod(s, c.N)
		s.Mul(s, kInv)
		s.Mod(s, c.N)
		if s.Sign() == 0 {
			continue
		}
		return r, s, nil
	}
}

// ECDH computes the X coordinate of priv * (peerX, peerY) (ec_derive_key).
// Returns ErrECFailed if the peer point is not on the curve.
func ECDH(c *ecparam.Curve, priv *big.Int, peerX, peerY *big.Int) (*big.Int, error) {
	if !onCurve(c, peerX, peerY) {
		return nil, ErrECFailed
	}
	shared := scalarMult(c, point{X: peerX, Y: peerY}, priv)
	if isInfinity(shared) {
		return nil, ErrECFailed
	}
	return shared.X, nil
}

func onCurve(c *ecparam.Curve, x, y *big.Int) bool {
	if x.Sign() < 0 || x.Cmp(c.P) >= 0 || y.Sign() < 0 || y.Cmp(c.P) >= 0 {
		return false
	}
	lhs := new(big.Int).Mul(y, y)
	lhs.Mod(lhs, c.P)

	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	ax := new(big.Int).Mul(c.A, x)
	rhs.Add(rhs, ax)
	rhs.Add(rhs, c.B)
	rhs.Mod(rhs, c.P)

	return lhs.Cmp(rhs) == 0
}
