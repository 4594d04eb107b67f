package frost

import (
	"crypto/ed25519"
	"crypto/rand"
	"math/big"

	"github.com/decred/dcrd/dcrec/edwards/v2"
)

var curve = edwards.Edwards()

// order is the prime order L of the Ed25519 base point's subgroup.
func order() *big.Int { return curve.Params().N }

func bigZero() *big.Int { return big.NewInt(0) }
func bigOne() *big.Int  { return big.NewInt(1) }

func randScalar() (*big.Int, error) {
	k, err := rand.Int(rand.Reader, order())
	if err != nil {
		return nil, err
	}
	return k, nil
}

func scalarBaseMult(k *big.Int) Point {
	x, y := curve.ScalarBaseMult(k.Bytes())
	return Point{X: x, Y: y}
}

func pointAdd(a, b Point) Point {
	x, y := curve.Add(a.X, a.Y, b.X, b.Y)
	return Point{X: x, Y: y}
}

func pointScalarMult(p Point, k *big.Int) Point {
	x, y := curve.ScalarMult(p.X, p.Y, k.Bytes())
	return Point{X: x, Y: y}
}

func addMod(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Add(a, b), order())
}

func subMod(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Sub(a, b), order())
}

func mulMod(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), order())
}

// evalPolynomial evaluates coefficients[0] + coefficients[1]*x + ... at x,
// mod the curve order (Horner's method).
func evalPolynomial(coefficients []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int)
	for i := len(coefficients) - 1; i >= 0; i-- {
		result = addMod(mulMod(result, x), coefficients[i])
	}
	return result
}

// evalCommitment computes sum_k commitment[k] * x^k, the Feldman
// verification value for a polynomial evaluated at x without revealing
// the coefficients.
func evalCommitment(commitment []Point, x *big.Int) Point {
	result := Point{X: big.NewInt(0), Y: big.NewInt(1)} // identity element
	xPow := big.NewInt(1)
	for _, c := range commitment {
		result = pointAdd(result, pointScalarMult(c, xPow))
		xPow = mulMod(xPow, x)
	}
	return result
}

// compressPoint encodes an affine point to its 32-byte Ed25519 wire
// form: little-endian y with the sign of x folded into the top bit
// (RFC 8032 §5.1.2).
func compressPoint(p Point) ed25519.PublicKey {
	y := p.Y.Bytes()
	out := make([]byte, 32)
	// y is big-endian from math/big; reverse into little-endian.
	for i, b := range y {
		out[len(y)-1-i] = b
	}
	if p.X.Bit(0) == 1 {
		out[31] |= 0x80
	}
	return ed25519.PublicKey(out)
}
