// internal/game/shuffle.go

package game

import "math/rand"

// ShuffledOrder returns a fresh random permutation of ids. The input slice
// is never mutated; each caller gets an independent order.
func ShuffledOrder(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
