// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	trueWords  = map[string]bool{"true": true, "yes": true, "y": true, "1": true, "enable": true, "enabled": true, "allow": true, "allowed": true}
	falseWords = map[string]bool{"false": true, "no": true, "n": true, "0": true, "disable": true, "disabled": true, "deny": true, "denied": true}
)

// Tokenize splits text on whitespace, keeping quoted substrings together.
// An apostrophe directly after a letter is part of the word.
func Tokenize(text string) []string {
	var (
		tokens  []string
		current strings.Builder
		quote   rune
		prev    rune
		inToken bool
	)
	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}
	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' && inToken && unicode.IsLetter(prev):
			current.WriteRune(r)
		case r == '"' || r == '\'' || r == '`':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
			inToken = true
		}
		prev = r
	}
	flush()
	return tokens
}

// normalizeName folds an argument name for lookups.
func normalizeName(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "-")
	var b strings.Builder
	for _, r := range name {
		if r == '-' || r == '_' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// compact lower-cases s and keeps only letters and digits.
func compact(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// ParseResult is the outcome of named-argument parsing.
type ParseResult struct {
	// Resolved holds validated values keyed by argument name.
	Resolved map[string]any
	// Invalid lists recognized names whose value failed validation.
	Invalid []string
	// Unknown lists explicit keys (--key, key=value) that name no candidate.
	Unknown []string
	// Tokens is the tokenized input; Consumed marks indices used as names or values.
	Tokens   []string
	Consumed map[int]bool
}

// splitKey recognizes "--name", "name=value", "name:value" and "name:".
// explicit reports the unambiguous key forms ("--name" and "name=value").
func splitKey(tok string) (key, inline string, explicit bool) {
	explicit = strings.HasPrefix(tok, "--")
	if i := strings.IndexAny(tok, "=:"); i > 0 {
		return tok[:i], tok[i+1:], explicit || tok[i] == '='
	}
	return tok, "", explicit
}

func parseNamed(tokens []string, candidates []string, validate func(name string, raw any) (any, error)) ParseResult {
	res := ParseResult{
		Resolved: make(map[string]any),
		Tokens:   tokens,
		Consumed: make(map[int]bool),
	}
	lookup := make(map[string]string, len(candidates))
	for _, c := range candidates {
		lookup[normalizeName(c)] = c
	}
	isName := func(tok string) bool {
		key, _, _ := splitKey(tok)
		_, ok := lookup[normalizeName(key)]
		return ok
	}

	for i := 0; i < len(tokens); i++ {
		key, inline, explicit := splitKey(tokens[i])
		name, ok := lookup[normalizeName(key)]
		if !ok {
			if explicit && normalizeName(key) != "" {
				res.Unknown = append(res.Unknown, strings.TrimLeft(key, "-"))
			}
			continue
		}
		raw, next := inline, -1
		if raw == "" {
			if i+1 >= len(tokens) || isName(tokens[i+1]) {
				continue
			}
			next = i + 1
			raw = tokens[next]
		}
		res.Consumed[i] = true
		if next >= 0 {
			res.Consumed[next] = true
			i = next
		}
		value, err := validate(name, raw)
		if err != nil {
			res.Invalid = append(res.Invalid, name)
			continue
		}
		res.Resolved[name] = value
	}
	return res
}

func parseBool(raw string) (bool, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if trueWords[s] {
		return true, true
	}
	if falseWords[s] {
		return false, true
	}
	return false, false
}

// coerceLiteral converts raw into typ. ok is false when raw does not fit.
func coerceLiteral(typ string, raw any) (any, bool) {
	switch typ {
	case TypeString:
		switch v := raw.(type) {
		case string:
			return v, true
		case nil:
			return nil, false
		default:
			return fmt.Sprint(v), true
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, true
		case string:
			return parseBool(v)
		default:
			return parseBool(fmt.Sprint(v))
		}
	case TypeNumber:
		f, ok := toFloat(raw)
		return f, ok
	case TypeInteger:
		f, ok := toFloat(raw)
		if !ok {
			return nil, false
		}
		return int(math.Trunc(f)), true
	default:
		return coerceScalar(raw)
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// coerceScalar is the generic conversion for untyped arguments: booleans
// and numbers are recognized, anything else stays a trimmed string.
func coerceScalar(raw any) (any, bool) {
	s, ok := raw.(string)
	if !ok {
		return raw, raw != nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return s, true
	}
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return s, true
}
