package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Local is a deterministic hash-derived embedding provider. It carries no
// semantic signal; it exists so ingestion degrades instead of blocking when
// the remote provider is unavailable. Same text always maps to the same
// unit-norm vector.
type Local struct {
	dimension int
}

// NewLocal creates a deterministic local provider with the given dimension.
func NewLocal(dimension int) *Local {
	return &Local{dimension: dimension}
}

// Embed derives a unit-norm vector from a SHA-256 stream of the text.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dimension)

	// Expand the digest into as many bytes as the dimension needs by
	// re-hashing with a block counter.
	seed := sha256.Sum256([]byte(text))
	var block [4]byte
	var sumSq float64
	for i := 0; i < l.dimension; i++ {
		binary.BigEndian.PutUint32(block[:], uint32(i/8))
		h := sha256.Sum256(append(seed[:], block[:]...))
		u := binary.BigEndian.Uint32(h[(i%8)*4 : (i%8)*4+4])
		// Map to [-1, 1).
		v := float64(int64(u)-math.MaxInt32) / math.MaxInt32
		vec[i] = float32(v)
		sumSq += v * v
	}

	if sumSq > 0 {
		norm := float32(math.Sqrt(sumSq))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// Dimension returns the vector dimension.
func (l *Local) Dimension() int {
	return l.dimension
}

// Name returns the provider identifier.
func (l *Local) Name() string {
	return "local-hash"
}

var _ Provider = (*Local)(nil)
