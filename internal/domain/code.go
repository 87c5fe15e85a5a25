package domain

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999

	// MaxCodeAttempts bounds how many codes are sampled before giving up.
	MaxCodeAttempts = 10
)

// CodeSource produces candidate join codes.
type CodeSource func() string

// RandomCode samples a 6-digit join code uniformly from 100000-999999.
func RandomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10)
}

// ValidCode reports whether s looks like a join code.
func ValidCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= codeMin && n <= codeMax
}
