package cryptofmt

import (
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/Jakuje/oseid/internal/ecparam"
	"github.com/Jakuje/oseid/internal/kernel"
)

type ecdsaSig struct {
	R, S *big.Int
}

func TestSignECRawProducesMinimalDERVerifiableSignature(t *testing.T) {
	curve, err := ecparam.Bind(0x22, make([]byte, 32)) // P-256
	if err != nil {
		t.Fatalf("ecparam.Bind: %v", err)
	}
	priv, pubX, pubY, err := kernel.GenerateEC(curve)
	if err != nil {
		t.Fatalf("GenerateEC: %v", err)
	}

	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i + 1)
	}

	der, err := SignECRaw(curve, priv, hash)
	if err != nil {
		t.Fatalf("SignECRaw: %v", err)
	}

	var sig ecdsaSig
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		t.Fatalf("asn1.Unmarshal: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes after DER signature")
	}

	if !verify(curve, pubX, pubY, hash, sig.R, sig.S) {
		t.Fatalf("signature failed verification")
	}
}

func TestSignECRawTruncatesOversizedHash(t *testing.T) {
	got := truncateOrPad(make([]byte, 48), 32)
	if len(got) != 32 {
		t.Fatalf("expected truncation to 32 bytes, got %d", len(got))
	}
}

func TestSignECRawPadsUndersizedHash(t *testing.T) {
	got := truncateOrPad([]byte{0xAB}, 4)
	want := []byte{0x00, 0x00, 0x00, 0xAB}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %X, got %X", want, got)
		}
	}
}

func verify(c *ecparam.Curve, pubX, pubY *big.Int, hash []byte, r, s *big.Int) bool {
	if r.Sign() <= 0 || r.Cmp(c.N) >= 0 || s.Sign() <= 0 || s.Cmp(c.N) >= 0 {
		return false
	}
	z := new(big.Int).SetBytes(hash)
	if z.BitLen() > c.N.BitLen() {
		z.Rsh(z, uint(z.BitLen()-c.N.BitLen()))
	}
	sInv := new(big.Int).ModInverse(s, c.N)
	if sInv == nil {
		return false
	}
	u1 := new(big.Int).Mul(z, sInv)
	u1.Mod(u1, c.N)
	u2 := new(big.Int).Mul(r, sInv)
	u2.Mod(u2, c.N)

	gx, gy := affineScalarMult(c, c.Gx, c.Gy, u1)
	px, py := affineScalarMult(c, pubX, pubY, u2)
	sx, _, ok := affineAdd(c, gx, gy, px, py)
	if !ok {
		return false
	}
	return new(big.Int).Mod(sx, c.N).Cmp(r) == 0
}

// affineScalarMult/affineAdd reimplement the minimal double-and-add curve
// arithmetic needed to verify a signature, independent of internal/kernel's
// unexported point type.
func affineScalarMult(c *ecparam.Curve, x, y *big.Int, k *big.Int) (*big.Int, *big.Int) {
	var rx, ry *big.Int // nil = infinity
	cx, cy := x, y
	for i := 0; i < k.BitLen(); i++ {
		if k.Bit(i) == 1 {
			if rx == nil {
				rx, ry = cx, cy
			} else {
				var ok bool
				rx, ry, ok = affineAdd(c, rx, ry, cx, cy)
				if !ok {
					rx, ry = nil, nil
				}
			}
		}
		cx, cy, _ = affineAdd(c, cx, cy, cx, cy)
	}
	return rx, ry
}

func affineAdd(c *ecparam.Curve, x1, y1, x2, y2 *big.Int) (*big.Int, *big.Int, bool) {
	if x1 == nil {
		return x2, y2, y2 != nil
	}
	if x2 == nil {
		return x1, y1, y1 != nil
	}
	var lambda *big.Int
	if x1.Cmp(x2) == 0 {
		if y1.Cmp(y2) != 0 || y1.Sign() == 0 {
			return nil, nil, false
		}
		num := new(big.Int).Mul(x1, x1)
		num.Mul(num, big.NewInt(3))
		num.Add(num, c.A)
		den := new(big.Int).Lsh(y1, 1)
		den.Mod(den, c.P)
		den.ModInverse(den, c.P)
		lambda = new(big.Int).Mul(num, den)
	} else {
		num := new(big.Int).Sub(y2, y1)
		den := new(big.Int).Sub(x2, x1)
		den.Mod(den, c.P)
		den.ModInverse(den, c.P)
		lambda = new(big.Int).Mul(num, den)
	}
	lambda.Mod(lambda, c.P)

	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, x1)
	x3.Sub(x3, x2)
	x3.Mod(x3, c.P)

	y3 := new(big.Int).Sub(x1, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, y1)
	y3.Mod(y3, c.P)

	return x3, y3, true
}
