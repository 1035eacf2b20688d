// Package fingerprint provides the deterministic text fingerprints used by
// duplicate detection: a 64-bit SimHash for near-identical wording, a
// 128-slot MinHash signature for character n-gram overlap, and a sha256
// content hash for staleness tracking. All functions are pure; identical
// input always yields bit-identical output.
package fingerprint

import (
	"hash/fnv"
	"math/bits"
	"regexp"
	"strings"
)

// hashSeed perturbs the token and n-gram hashes. Changing it changes every
// stored fingerprint, so cached rows must be rebuilt if it is ever touched.
const hashSeed uint64 = 0x9e3779b97f4a6813

// golden is the splitmix64 increment used to derive the MinHash seed stream.
const golden uint64 = 0x9e3779b97f4a7c15

var tokenPattern = regexp.MustCompile(`\W+`)

// mix64 is the splitmix64 finalizer; it spreads entropy across all 64 bits.
func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

func hash64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func tokenize(text string) []string {
	parts := tokenPattern.Split(strings.ToLower(text), -1)
	tokens := parts[:0]
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// SimHash computes a 64-bit fingerprint of text. Tokens are lowercased words
// split on non-word boundaries; each distinct token votes its term frequency
// on every bit position of its hash. A bit of the fingerprint is set iff the
// accumulated vote is strictly positive. Empty or whitespace-only content
// yields 0.
func SimHash(text string) uint64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}

	var sums [64]int
	for tok, f := range freq {
		h := mix64(hash64(tok) ^ hashSeed)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				sums[i] += f
			} else {
				sums[i] -= f
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if sums[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// HammingDistance counts differing bits between two fingerprints (0-64,
// lower means more similar).
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
