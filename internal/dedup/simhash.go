// Package dedup detects exact and near-duplicate articles across
// sources using a content fingerprint index.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// simhashBits is the fingerprint width.
const simhashBits = 64

// ExactHash returns the hex SHA-256 of the normalized body text.
func ExactHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Simhash computes a 64-bit similarity-preserving hash over the
// text's word shingles. Texts differing in a few words land within a
// small Hamming distance of each other.
func Simhash(text string) uint64 {
	var weights [simhashBits]int

	for _, shingle := range shingles(text, 3) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(shingle))
		v := h.Sum64()

		for i := range simhashBits {
			if v&(1<<uint(i)) != 0 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}

	var out uint64
	for i := range simhashBits {
		if weights[i] > 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// shingles tokenizes text into lowercase words and returns overlapping
// n-grams. Short texts fall back to single-word shingles so they still
// fingerprint.
func shingles(text string, n int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	if len(words) == 0 {
		return nil
	}
	if len(words) < n {
		return []string{strings.Join(words, " ")}
	}

	out := make([]string, 0, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+n], " "))
	}
	return out
}
