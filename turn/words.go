/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package turn

import (
	_ "embed"
	"math/rand/v2"
	"strings"
)

//go:embed words.txt
var wordList string

// DefaultWords returns the built-in word list, one entry per non-empty
// line.
func DefaultWords() []string {
	var words []string

	for line := range strings.Lines(wordList) {
		w := strings.TrimSpace(line)
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, w)
	}

	return words
}

// pickWords draws n distinct words and the index of the one to draw.
func pickWords(rng *rand.Rand, all []string, n int) ([]string, int) {
	n = min(n, len(all))

	pool := append([]string(nil), all...)
	for i := range n {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return pool[:n:n], rng.IntN(n)
}
