// Package vectors holds the small amount of vector math the semantic
// detection stage needs, plus the byte codec used to store embeddings on
// memory items and in the embedding cache.
package vectors

import (
	"encoding/binary"
	"math"
)

// Cosine computes the cosine similarity of two embeddings, in [-1, 1].
// Mismatched lengths, empty inputs, and zero vectors all score 0, which
// ranks the pair below any similarity threshold.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	denom := math.Sqrt(na * nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Encode serializes an embedding to the little-endian float32 blob stored in
// SQLite. Encode(nil) is an empty slice, which store code treats as "no
// vector".
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode deserializes a stored embedding blob. A blob whose length is not a
// multiple of 4 decodes to nil rather than a garbage vector.
func Decode(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
