// Package hashtag extracts hashtag candidates from free text and keeps tag
// lists normalized.
package hashtag

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	// MaxSuggestions is how many new tags Suggest returns at most.
	MaxSuggestions = 3

	minTokenLen = 3
	maxTokenLen = 30
	sweetMin    = 5
	sweetMax    = 12
)

//go:embed affinity.yaml
var defaultTable []byte

// Table is the on-disk shape of the keyword-affinity table.
type Table struct {
	Affinity  map[string]int `yaml:"affinity"`
	Stopwords []string       `yaml:"stopwords"`
}

// Engine ranks hashtag candidates. It is immutable after construction and
// safe for concurrent use.
type Engine struct {
	affinity  map[string]int
	stopwords map[string]struct{}
}

// NewEngine copies t into a ready-to-use engine.
func NewEngine(t Table) *Engine {
	e := &Engine{
		affinity:  make(map[string]int, len(t.Affinity)),
		stopwords: make(map[string]struct{}, len(t.Stopwords)),
	}
	for k, v := range t.Affinity {
		e.affinity[strings.ToLower(k)] = v
	}
	for _, w := range t.Stopwords {
		e.stopwords[strings.ToLower(w)] = struct{}{}
	}
	return e
}

// ParseTable decodes a YAML affinity table.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("hashtag: parse table: %w", err)
	}
	return t, nil
}

// LoadDefault builds an engine from the embedded table.
func LoadDefault() (*Engine, error) {
	t, err := ParseTable(defaultTable)
	if err != nil {
		return nil, err
	}
	return NewEngine(t), nil
}

// MustLoadDefault is LoadDefault for package-level initialization.
func MustLoadDefault() *Engine {
	e, err := LoadDefault()
	if err != nil {
		panic(err)
	}
	return e
}

type candidate struct {
	token    string
	freq     int
	affinity int
	distance int
}

// Suggest returns up to MaxSuggestions lowercase tags drawn from focus that
// are not already in existing (compared case-insensitively, '#' ignored).
// Candidates rank by frequency in focus, then affinity weight, then how
// close their length is to the 5-12 character sweet spot, then
// alphabetically.
func (e *Engine) Suggest(focus string, existing []string) []string {
	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		if n := strings.ToLower(Normalize(t)); n != "" {
			have[n] = struct{}{}
		}
	}

	freq := map[string]int{}
	for _, tok := range Tokenize(focus) {
		if n := utf8.RuneCountInString(tok); n < minTokenLen || n > maxTokenLen {
			continue
		}
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		freq[tok]++
	}

	cands := make([]candidate, 0, len(freq))
	for tok, n := range freq {
		if _, dup := have[tok]; dup {
			continue
		}
		cands = append(cands, candidate{
			token:    tok,
			freq:     n,
			affinity: e.affinity[tok],
			distance: sweetSpotDistance(utf8.RuneCountInString(tok)),
		})
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.freq != b.freq {
			return a.freq > b.freq
		}
		if a.affinity != b.affinity {
			return a.affinity > b.affinity
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.token < b.token
	})

	out := make([]string, 0, MaxSuggestions)
	for _, c := range cands {
		if len(out) == MaxSuggestions {
			break
		}
		out = append(out, c.token)
	}
	return out
}

// Keywords returns the distinct non-stopword tokens of text, at least three
// characters long, in order of first appearance.
func (e *Engine) Keywords(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range Tokenize(text) {
		if n := utf8.RuneCountInString(tok); n < minTokenLen || n > maxTokenLen {
			continue
		}
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func sweetSpotDistance(n int) int {
	switch {
	case n < sweetMin:
		return sweetMin - n
	case n > sweetMax:
		return n - sweetMax
	}
	return 0
}

// Tokenize lowercases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize strips a leading '#' and every character that cannot appear
// in a hashtag (anything but letters, digits and '_').
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimLeft(tag, "#")
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, tag)
}

// Dedupe normalizes tags and drops empties and case-insensitive repeats,
// keeping the first spelling seen.
func Dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := Normalize(t)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Line renders tags as a space-separated "#a #b" line.
func Line(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, "#"+t)
	}
	return strings.Join(parts, " ")
}
