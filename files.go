/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Seednode/drawcast/turn"
)

// loadWords reads one word per line from path, skipping blanks and
// #-comments. An empty path selects the built-in list.
func loadWords(path string) ([]string, error) {
	if path == "" {
		return turn.DefaultWords(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}

		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return words, nil
}

// humanReadableSize formats a byte count with SI prefixes.
func humanReadableSize(bytes int) string {
	size := float64(bytes)

	for _, unit := range []string{"B", "kB", "MB", "GB"} {
		if size < 1000 || unit == "GB" {
			if unit == "B" {
				return fmt.Sprintf("%d B", bytes)
			}

			return fmt.Sprintf("%.1f %s", size, unit)
		}

		size /= 1000
	}

	return ""
}
