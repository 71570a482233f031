// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultOptionThreshold is the minimum similarity for a fuzzy option match.
const DefaultOptionThreshold = 0.8

// Similarity returns 1 - editDistance/maxLen over the lower-cased inputs.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// MatchOption returns the option most similar to input. ok is false when the
// best score is below threshold.
func MatchOption(input string, options []Option, threshold float64) (best Option, score float64, ok bool) {
	if strings.TrimSpace(input) == "" {
		return Option{}, 0, false
	}
	for _, opt := range options {
		for _, candidate := range optionTexts(opt) {
			if s := Similarity(input, candidate); s > score {
				best, score = opt, s
			}
		}
	}
	return best, score, score > 0 && score >= threshold
}

func optionTexts(opt Option) []string {
	texts := []string{fmt.Sprint(opt.Value)}
	if opt.Label != "" {
		texts = append(texts, opt.Label)
	}
	return texts
}
