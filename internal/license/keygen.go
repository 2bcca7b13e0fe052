package license

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyAlphabet omits 0, O, 1 and I so keys survive being read aloud or retyped.
	KeyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// KeyLength is the number of significant characters in a key.
	KeyLength = 16
	// KeyGroupSize is the number of characters between dashes.
	KeyGroupSize = 4

	saltLength = 32 // 32 bytes = 256 bits
	hintLength = 4
)

// GenerateKey returns a new random key formatted as XXXX-XXXX-XXXX-XXXX
func GenerateKey() (string, error) {
	chars := make([]byte, 0, KeyLength)
	buf := make([]byte, KeyLength)

	// 256 is a multiple of len(KeyAlphabet), so a byte maps onto the alphabet
	// without bias. The rejection branch keeps that true if the alphabet changes.
	limit := 256 - 256%len(KeyAlphabet)

	for len(chars) < KeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			chars = append(chars, KeyAlphabet[int(b)%len(KeyAlphabet)])
			if len(chars) == KeyLength {
				break
			}
		}
	}

	return FormatKey(string(chars)), nil
}

// FormatKey groups a normalized key into dash-separated blocks
func FormatKey(normalized string) string {
	var b strings.Builder
	for i, r := range normalized {
		if i > 0 && i%KeyGroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeKey strips separators and upper-cases the key. Nothing else is
// changed, so normalization is only case- and separator-insensitive.
func NormalizeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// GenerateSalt returns 256 random bits, hex encoded
func GenerateSalt() (string, error) {
	bytes := make([]byte, saltLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashKey returns hex(SHA-256(normalize(key) || salt))
func HashKey(key, salt string) string {
	sum := sha256.Sum256([]byte(NormalizeKey(key) + salt))
	return hex.EncodeToString(sum[:])
}

// MatchKey reports whether key hashes to storedHash under salt, comparing in
// constant time
func MatchKey(key, salt, storedHash string) bool {
	actual := HashKey(key, salt)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(storedHash)) == 1
}

// DisplayHint returns the first characters of the key followed by "...".
// It identifies a key to a human without revealing enough to recover it.
func DisplayHint(key string) string {
	normalized := NormalizeKey(key)
	if len(normalized) > hintLength {
		normalized = normalized[:hintLength]
	}
	return normalized + "..."
}
