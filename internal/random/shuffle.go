// Package random provides selection helpers backed by crypto/rand.
package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Shuffle permutes the slice in place with a Fisher-Yates shuffle.
func Shuffle[T any](slice []T) error {
	for i := len(slice) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("generate random index: %w", err)
		}
		j := int(jBig.Int64())
		slice[i], slice[j] = slice[j], slice[i]
	}
	return nil
}

// Pick shuffles items and returns the first one. ok is false for an empty
// slice.
func Pick[T any](items []T) (item T, ok bool, err error) {
	if len(items) == 0 {
		return item, false, nil
	}
	if err := Shuffle(items); err != nil {
		return item, false, err
	}
	return items[0], true, nil
}
