// Package mask implements the pre-processing step that replaces literal
// substrings matching known patterns (IPs, hex IDs, numbers, quoted
// strings, ...) with named placeholders before the Drain engine ever sees
// a line.
package mask

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Rule is a single compiled (pattern, mask name) instruction.
type Rule struct {
	Name    string
	pattern *regexp.Regexp
}

// Masker applies an ordered list of rules to a line. It is immutable after
// construction and safe to share across goroutines.
type Masker struct {
	prefix string
	suffix string
	rules  []Rule

	// nameToRuleIdx indexes rule positions by mask name, for the parameter
	// extractor's "which patterns can fill a <NAME> slot" lookup.
	nameToRuleIdx map[string][]int
}

// New builds the masker from already-compiled rules (see NewFromPatterns
// for compiling from source). A rule without a compiled pattern is a
// configuration error, returned rather than panicked.
func New(prefix, suffix string, rules []Rule) (*Masker, error) {
	index := make(map[string][]int, len(rules))
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		if r.pattern == nil {
			return nil, errors.Errorf("mask rule %d (%s) has no compiled pattern", i, r.Name)
		}
		compiled[i] = r
		index[r.Name] = append(index[r.Name], i)
	}
	return &Masker{prefix: prefix, suffix: suffix, rules: compiled, nameToRuleIdx: index}, nil
}

// NewFromPatterns compiles a slice of (pattern, name) source pairs.
// Compilation failure aborts construction with a wrapped error identifying
// the offending pattern.
func NewFromPatterns(prefix, suffix string, patterns []struct{ Pattern, Name string }) (*Masker, error) {
	rules := make([]Rule, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling mask pattern %q for %q", p.Pattern, p.Name)
		}
		rules = append(rules, Rule{Name: p.Name, pattern: re})
	}
	return New(prefix, suffix, rules)
}

// Placeholder renders the literal placeholder token for a mask name, e.g.
// "<TOKEN>".
func (m *Masker) Placeholder(name string) string {
	return m.prefix + name + m.suffix
}

// Mask applies every rule in declaration order, replacing each non-
// overlapping match with PREFIX+name+SUFFIX. Rule order is significant:
// later rules see the output of earlier ones. Masking never fails; a
// non-matching rule is a no-op.
func (m *Masker) Mask(line string) string {
	out := line
	for _, r := range m.rules {
		// The replacement is a literal placeholder, not a template: escape
		// any "$" so ReplaceAllString never interprets it as a submatch
		// reference, even though the pattern itself may contain groups
		// (multi-group patterns are supported for matching, not for
		// selectively keeping part of the match).
		placeholder := strings.ReplaceAll(m.Placeholder(r.Name), "$", "$$")
		out = r.pattern.ReplaceAllString(out, placeholder)
	}
	return out
}

// Names returns every configured mask name, in rule declaration order with
// duplicates removed on first sight. Used by the parameter extractor to
// build the mask vocabulary.
func (m *Masker) Names() []string {
	seen := make(map[string]bool, len(m.rules))
	names := make([]string, 0, len(m.rules))
	for _, r := range m.rules {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		names = append(names, r.Name)
	}
	return names
}

// RulesFor returns the compiled patterns bound to a mask name, in
// declaration order, for use by the parameter extractor when
// exact_matching is requested.
func (m *Masker) RulesFor(name string) []*regexp.Regexp {
	idxs := m.nameToRuleIdx[name]
	if len(idxs) == 0 {
		return nil
	}
	out := make([]*regexp.Regexp, len(idxs))
	for i, idx := range idxs {
		out[i] = m.rules[idx].pattern
	}
	return out
}

// Prefix and Suffix expose the configured affixes the masker emits.
func (m *Masker) Prefix() string { return m.prefix }
func (m *Masker) Suffix() string { return m.suffix }
