package verification

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet excludes ambiguous characters (0/O, 1/I/L) so codes survive
// being read over the phone or retyped from a letter.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateCode returns a random code of the given length drawn from the
// unambiguous alphabet, using crypto/rand with rejection sampling so every
// character is uniformly likely.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	// 256 % 31 != 0, so bytes >= limit are rejected to avoid modulo bias.
	limit := byte(256 - 256%len(codeAlphabet))
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
