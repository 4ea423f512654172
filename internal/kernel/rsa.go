// Package kernel implements the arithmetic kernels spec.md §1 treats as
// external collaborators of assumed correctness (rsa_calculate, rsa_keygen,
// ec_key_gener, ec_derive_key, ecdsa_sign, des_run, aes_run). The card
// processor in internal/session and internal/cryptofmt consumes these
// through narrow interfaces and never reimplements padding or formatting
// here — that belongs to the formatter layer.
//
// These kernels are built on math/big and the standard crypto primitives
// because no third-party RSA-CRT or generic-EC arithmetic kernel appears
// anywhere in the reference corpus (DESIGN.md records this as the one
// deliberate stdlib-only concern).
package kernel

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// RSAPrivateCRT is the CRT representation of an RSA private key, the only
// form this card ever stores (spec.md §3).
type RSAPrivateCRT struct {
	P, Q, DP, DQ, QInv *big.Int
	Modulus            *big.Int
	PublicExponent     *big.Int
}

// ModulusBytes is the byte length of the modulus (half of it is len(P)).
func (k *RSAPrivateCRT) ModulusBytes() int {
	return (k.Modulus.BitLen() + 7) / 8
}

// ErrRSAFailed stands in for the kernel's own failure signal; callers must
// zeroize buffers and report 0x6985 on this error (spec.md §4.3).
var ErrRSAFailed = errors.New("rsa kernel: operation failed")

// Exec performs m^d mod n using the CRT shortcut:
//
//	m1 = c^dP mod p; m2 = c^dQ mod q
//	h  = qInv * (m1 - m2) mod p
//	m  = m2 + h*q
func (k *RSAPrivateCRT) Exec(c *big.Int) (*big.Int, error) {
	if k.P == nil || k.Q == nil || k.DP == nil || k.DQ == nil || k.QInv == nil {
		return nil, ErrRSAFailed
	}
	if c.Sign() < 0 || c.Cmp(k.Modulus) >= 0 {
		return nil, ErrRSAFailed
	}
	m1 := new(big.Int).Exp(c, k.DP, k.P)
	m2 := new(big.Int).Exp(c, k.DQ, k.Q)

	h := new(big.Int).Sub(m1, m2)
	h.Mod(h, k.P)
	h.Mul(h, k.QInv)
	h.Mod(h, k.P)

	m := new(big.Int).Mul(h, k.Q)
	m.Add(m, m2)
	return m, nil
}

// GenerateRSA generates an RSA CRT keypair of the given modulus size in
// bits, fixed to the public exponent 65537 (spec.md §4.8). Primes are
// regenerated until p != q and e is invertible mod phi.
func GenerateRSA(bits int) (*RSAPrivateCRT, error) {
	if bits%64 != 0 || bits < 512 || bits > 2048 {
		return nil, errors.New("rsa kernel: unsupported modulus size")
	}
	e := big.NewInt(65537)
	half := bits / 2

	for {
		p, err := rand.Prime(rand.Reader, half)
		if err != nil {
			return nil, err
		}
		q, err := rand.Prime(rand.Reader, half)
		if err != nil {
			return nil, err
		}
		if p.Cmp(q) == 0 {
			continue
		}
		pm1 := new(big.Int).Sub(p, big.NewInt(1))
		qm1 := new(big.Int).Sub(q, big.NewInt(1))
		phi := new(big.Int).Mul(pm1, qm1)

		d := new(big.Int).ModInverse(e, phi)
		if d == nil {
			continue
		}

		dp := new(big.Int).Mod(d, pm1)
		dq := new(big.Int).Mod(d, qm1)
		qinv := new(big.Int).ModInverse(q, p)
		if qinv == nil {
			continue
		}

		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}

		return &RSAPrivateCRT{
			P: p, Q: q, DP: dp, DQ: dq, QInv: qinv,
			Modulus: n, PublicExponent: e,
		}, nil
	}
}
