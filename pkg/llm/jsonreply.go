// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/skutner/ploinky-sub003/pkg/errors"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// DecodeJSONReply decodes a model reply into v. Strict parsing is tried
// first, then fenced code blocks, then the first balanced object or array
// embedded in prose. It fails with MALFORMED_REPLY when nothing decodes.
func DecodeJSONReply(reply string, v any) error {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return errors.New(errors.CodeMalformedReply, "empty model reply", nil)
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	for _, candidate := range JSONCandidates(trimmed) {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}
	return errors.New(errors.CodeMalformedReply, "model reply is not valid JSON", nil).
		WithContext("reply", truncate(trimmed, 512))
}

// JSONCandidates lists JSON fragments found in text, most specific first.
func JSONCandidates(text string) []string {
	var out []string
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if body := strings.TrimSpace(m[1]); body != "" {
			out = append(out, body)
		}
	}
	for _, open := range []byte{'{', '['} {
		if frag := balanced(text, open); frag != "" {
			out = append(out, frag)
		}
	}
	return out
}

// balanced returns the first balanced fragment starting at open, honoring
// string literals so braces inside quotes are not counted.
func balanced(text string, open byte) string {
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	for start := strings.IndexByte(text, open); start >= 0; {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case open:
				depth++
			case closeCh:
				depth--
				if depth == 0 {
					frag := text[start : i+1]
					if json.Valid([]byte(frag)) {
						return frag
					}
					i = len(text)
				}
			}
		}
		next := strings.IndexByte(text[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}
