package genotype

import (
	"fmt"
	"math/rand"
	"time"
)

// RandomElement returns one element of values using rng, or a time-seeded
// source when rng is nil.
func RandomElement[T any](rng *rand.Rand, values []T) (T, error) {
	var zero T
	if len(values) == 0 {
		return zero, fmt.Errorf("values are required")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return values[rng.Intn(len(values))], nil
}
