package service

import (
	"crypto/rand"
	"io"
	"math/big"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// CodeGenerator returns a candidate patient code. Uniqueness is checked by the caller.
type CodeGenerator func() (string, error)

// RandomCode draws codeLength characters from A-Z0-9 using src.
func RandomCode(src io.Reader) CodeGenerator {
	size := big.NewInt(int64(len(codeAlphabet)))
	return func() (string, error) {
		buf := make([]byte, codeLength)
		for i := range buf {
			n, err := rand.Int(src, size)
			if err != nil {
				return "", err
			}
			buf[i] = codeAlphabet[n.Int64()]
		}
		return string(buf), nil
	}
}

var defaultCodeGenerator = RandomCode(rand.Reader)
