package conversation

import (
	"strings"
	"unicode"
)

// tokenize lowercases text and splits it into words. Apostrophes and
// hyphens inside a word are kept so "d'accord" and "allons-y" stay whole.
func tokenize(text string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if w := strings.Trim(cur.String(), "'-"); w != "" {
			out = append(out, w)
		}
		cur.Reset()
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-':
			cur.WriteRune(r)
		case r == '’':
			cur.WriteRune('\'')
		default:
			flush()
		}
	}
	flush()
	return out
}

// phraseMatcher matches multi-word phrases on word boundaries.
type phraseMatcher struct {
	phrases [][]string
}

func newPhraseMatcher(phrases []string) *phraseMatcher {
	m := &phraseMatcher{}
	for _, p := range phrases {
		if toks := tokenize(p); len(toks) > 0 {
			m.phrases = append(m.phrases, toks)
		}
	}
	return m
}

func (m *phraseMatcher) matchTokens(tokens []string) bool {
	for _, phrase := range m.phrases {
		if containsSequence(tokens, phrase) {
			return true
		}
	}
	return false
}

func (m *phraseMatcher) Match(text string) bool {
	return m.matchTokens(tokenize(text))
}

func containsSequence(tokens, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j := range seq {
			if tokens[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
