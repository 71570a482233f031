// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	defaultPattern = regexp.MustCompile(`(?i)\bdefaults?\s+to\s+(?:"([^"]*)"|'([^']*)'|([^\s,;()]+))`)

	rolePhrases = []struct {
		pattern *regexp.Regexp
		value   string
	}{
		{regexp.MustCompile(`(?i)\bproject\s+manager\b`), "ProjectManager"},
		{regexp.MustCompile(`(?i)\bsystem\s+admin(istrator)?\b`), "SystemAdmin"},
	}

	givenNameArgs  = []string{"givenname", "firstname"}
	familyNameArgs = []string{"familyname", "lastname", "surname"}

	nameStopWords = map[string]bool{
		"a": true, "an": true, "the": true, "and": true, "or": true, "for": true, "with": true,
		"to": true, "of": true, "as": true, "in": true, "on": true, "at": true, "by": true,
		"is": true, "be": true, "me": true, "my": true, "our": true, "their": true, "please": true,
		"add": true, "new": true, "create": true, "make": true, "register": true, "invite": true,
		"update": true, "delete": true, "remove": true, "set": true, "change": true, "edit": true,
		"user": true, "users": true, "account": true, "member": true, "person": true, "employee": true,
		"named": true, "called": true, "role": true, "project": true, "manager": true,
		"system": true, "admin": true, "administrator": true, "team": true, "lead": true,
	}
)

// ApplyDescriptionDefaults fills unset arguments whose description states
// "defaults to <value>". It returns the names it set.
func ApplyDescriptionDefaults(ec *ExecutionContext) []string {
	var set []string
	for _, arg := range ec.Skill.Arguments {
		if ec.Has(arg.Name) {
			continue
		}
		m := defaultPattern.FindStringSubmatch(arg.Description)
		if m == nil {
			continue
		}
		value := firstNonEmpty(m[1], m[2], strings.TrimRight(m[3], "."))
		if m[1] == "" && m[2] == "" && value == "" {
			continue
		}
		if err := ec.Set(arg.Name, value); err == nil {
			set = append(set, arg.Name)
		}
	}
	return set
}

// PrefillFromTask scans a task description for "name value" pairs and a few
// heuristics (a person's given and family name, well-known roles). Only
// unset arguments are touched and only valid values are committed.
func PrefillFromTask(ec *ExecutionContext, description string) []string {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil
	}
	var set []string
	commit := func(name string, value any) {
		if name == "" || ec.Has(name) {
			return
		}
		if err := ec.Set(name, value); err == nil {
			set = append(set, name)
		}
	}

	parsed := ec.ParseNamedArguments(description, ec.ParseableArgumentNames())
	for _, name := range ec.Skill.ArgumentNames() {
		if v, ok := parsed.Resolved[name]; ok {
			commit(name, v)
		}
	}

	if roleArg := findArgument(ec.Skill, "role"); roleArg != "" {
		for _, rp := range rolePhrases {
			if rp.pattern.MatchString(description) {
				commit(roleArg, rp.value)
				break
			}
		}
	}

	given := findArgument(ec.Skill, givenNameArgs...)
	family := findArgument(ec.Skill, familyNameArgs...)
	if given != "" && (!ec.Has(given) || (family != "" && !ec.Has(family))) {
		if first, last, ok := personName(parsed, ec); ok {
			commit(given, first)
			commit(family, last)
		}
	}
	return set
}

// personName finds the first two consecutive alphabetic tokens that are
// neither stop words nor argument names nor values already parsed.
func personName(parsed ParseResult, ec *ExecutionContext) (string, string, bool) {
	names := make(map[string]bool)
	for _, n := range ec.Skill.ArgumentNames() {
		names[normalizeName(n)] = true
	}
	eligible := func(i int) bool {
		tok := parsed.Tokens[i]
		if parsed.Consumed[i] || len([]rune(tok)) < 2 || names[normalizeName(tok)] {
			return false
		}
		if nameStopWords[strings.ToLower(tok)] {
			return false
		}
		for _, r := range tok {
			if !unicode.IsLetter(r) {
				return false
			}
		}
		return true
	}
	for i := 0; i+1 < len(parsed.Tokens); i++ {
		if eligible(i) && eligible(i+1) {
			return capitalize(parsed.Tokens[i]), capitalize(parsed.Tokens[i+1]), true
		}
	}
	return "", "", false
}

// findArgument returns the first declared argument whose folded name is in wanted.
func findArgument(skill *Skill, wanted ...string) string {
	for _, arg := range skill.Arguments {
		folded := normalizeName(arg.Name)
		for _, w := range wanted {
			if folded == w {
				return arg.Name
			}
		}
	}
	return ""
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
