package session

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet has 32 symbols and omits I, O, 0 and 1.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultCodeLength yields 32^6 (about 1.07e9) possible codes.
const DefaultCodeLength = 6

// NewCode draws a session code of length n from crypto/rand.
func NewCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	// 256 is a multiple of 32, so masking keeps the draw uniform
	for i := range buf {
		buf[i] = codeAlphabet[buf[i]&31]
	}
	return string(buf), nil
}

// IsValidCode reports whether s could have been produced by NewCode.
func IsValidCode(s string) bool {
	if len(s) == 0 || len(s) > 16 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isCodeSymbol(s[i]) {
			return false
		}
	}
	return true
}

func isCodeSymbol(c byte) bool {
	for i := 0; i < len(codeAlphabet); i++ {
		if codeAlphabet[i] == c {
			return true
		}
	}
	return false
}
