package fingerprint

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// SignatureSize is the number of independent hash slots in a MinHash
// signature. 128 slots bound the Jaccard estimator's standard error to
// roughly 1/sqrt(128) ~ 0.09.
const SignatureSize = 128

// Signature is a MinHash signature over a text's character 3-grams.
type Signature [SignatureSize]uint64

// minhashSeeds is the splitmix64 stream seeded from hashSeed; slot i of every
// signature uses seed i.
var minhashSeeds = func() [SignatureSize]uint64 {
	var seeds [SignatureSize]uint64
	for i := range seeds {
		seeds[i] = mix64(hashSeed + uint64(i+1)*golden)
	}
	return seeds
}()

func ngrams(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	padded := []rune(" " + strings.ToLower(trimmed) + " ")
	grams := make([]string, 0, len(padded)-2)
	for i := 0; i+3 <= len(padded); i++ {
		grams = append(grams, string(padded[i:i+3]))
	}
	return grams
}

// MinHashSignature computes the 128-slot signature of text over its
// overlapping 3-character n-grams (space-padded at both boundaries). Empty
// or whitespace-only content yields the zero signature.
func MinHashSignature(text string) Signature {
	var sig Signature
	grams := ngrams(text)
	if len(grams) == 0 {
		return sig
	}

	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for _, g := range grams {
		base := hash64(g)
		for i := range sig {
			if v := mix64(base ^ minhashSeeds[i]); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// JaccardEstimate is the fraction of slots where the two signatures agree,
// an unbiased estimator of the n-gram set overlap of the source texts.
func JaccardEstimate(a, b *Signature) float64 {
	equal := 0
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / float64(SignatureSize)
}

// SignatureToBytes converts a signature to its stored form (little-endian).
func SignatureToBytes(sig *Signature) []byte {
	buf := make([]byte, SignatureSize*8)
	for i, v := range sig {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

// BytesToSignature converts a stored signature (little-endian) back.
func BytesToSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize*8 {
		return sig, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize*8, len(b))
	}
	for i := range sig {
		sig[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return sig, nil
}
