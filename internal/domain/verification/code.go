package verification

import (
	"crypto/rand"
	"math/big"
)

// generateCode returns a uniformly random numeric code of exactly length
// digits, drawn from [10^(length-1), 10^length). crypto/rand because the
// code gates an identity claim.
func generateCode(length int) (string, error) {
	min := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	span := new(big.Int).Sub(max, min)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	return new(big.Int).Add(min, n).String(), nil
}
