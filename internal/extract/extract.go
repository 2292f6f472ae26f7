// Package extract implements the inverse of templating: given a template
// string and an observed line, it reconstructs a regular expression from
// the template and the known mask vocabulary to bind concrete values back
// to placeholder slots.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/simplelru"
)

// Vocabulary describes everything the extractor needs to know about the
// masker and the Drain engine's own placeholder scheme.
type Vocabulary struct {
	// Names are the masker's configured mask names (e.g. "NUM", "IP"),
	// in declaration order.
	Names []string
	// RulesFor returns the compiled patterns bound to a mask name, used
	// when ExactMatching is requested.
	RulesFor func(name string) []*regexp.Regexp
	// Prefix/Suffix are the global placeholder affixes.
	Prefix, Suffix string
	// GenericName is the Drain engine's own generalization mask name
	// (e.g. "TOKEN"); occurrences of PREFIX+GenericName+digits*+SUFFIX
	// are handled by the wildcard "*" pass rather than a named pass, per
	// spec §4.5/§9 (a mask named the same as GenericName still merges
	// correctly since the wildcard pass simply runs after, and any
	// occurrence without digits was already consumed by the named pass).
	GenericName string
}

// Binding records which mask name produced a given capture group.
type Binding struct {
	Value string
	Mask  string
}

// Extractor builds and caches the per-template regex used to recover
// parameter values from observed lines.
type Extractor struct {
	vocab           Vocabulary
	extraDelimiters []string
	cache           *lru.LRU
}

// New builds an Extractor. cacheCapacity is
// parameter_extraction_cache_capacity from config; 0 disables caching.
func New(vocab Vocabulary, extraDelimiters []string, cacheCapacity int) *Extractor {
	var cache *lru.LRU
	if cacheCapacity > 0 {
		cache, _ = lru.NewLRU(cacheCapacity, nil)
	}
	return &Extractor{vocab: vocab, extraDelimiters: extraDelimiters, cache: cache}
}

type compiledTemplate struct {
	re       *regexp.Regexp
	bindings map[string]string // capture group name -> mask name
}

// cacheKey distinguishes exact-matching and loose-matching compilations of
// the same template, since they produce different regexes.
func cacheKey(template string, exactMatching bool) string {
	if exactMatching {
		return "x:" + template
	}
	return "l:" + template
}

// Extract recovers (value, mask_name) pairs for every placeholder slot in
// template that the normalized line fills. It returns (nil, false) if the
// dynamically built regex fails to compile or the line doesn't match —
// these are not errors, per spec §7.
func (e *Extractor) Extract(template, line string, exactMatching bool) ([]Binding, bool) {
	ct, ok := e.compiled(template, exactMatching)
	if !ok {
		return nil, false
	}

	normalized := normalize(line, e.extraDelimiters)
	m := ct.re.FindStringSubmatch(normalized)
	if m == nil {
		return nil, false
	}

	bindings := make([]Binding, 0, len(ct.bindings))
	for i, name := range ct.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		maskName, ok := ct.bindings[name]
		if !ok {
			continue
		}
		bindings = append(bindings, Binding{Value: m[i], Mask: maskName})
	}
	return bindings, true
}

func (e *Extractor) compiled(template string, exactMatching bool) (*compiledTemplate, bool) {
	key := cacheKey(template, exactMatching)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return v.(*compiledTemplate), true
		}
	}

	ct, ok := e.build(template, exactMatching)
	if !ok {
		return nil, false
	}
	if e.cache != nil {
		e.cache.Add(key, ct)
	}
	return ct, true
}

// build implements spec §4.5's construction steps 2-7.
func (e *Extractor) build(template string, exactMatching bool) (*compiledTemplate, bool) {
	escaped := regexp.QuoteMeta(template)
	bindings := make(map[string]string)
	groupCounter := 0

	substitute := func(pattern *regexp.Regexp, maskName, alt string) {
		locs := pattern.FindAllStringIndex(escaped, -1)
		if len(locs) == 0 {
			return
		}
		var sb strings.Builder
		last := 0
		for _, loc := range locs {
			sb.WriteString(escaped[last:loc[0]])
			groupCounter++
			groupName := "p_" + strconv.Itoa(groupCounter)
			sb.WriteString("(?P<" + groupName + ">" + alt + ")")
			bindings[groupName] = maskName
			last = loc[1]
		}
		sb.WriteString(escaped[last:])
		escaped = sb.String()
	}

	// Named masks run first: a literal masked "<TOKEN>" (no digits) is
	// matched here before the wildcard pass below would otherwise treat
	// it as a zero-digit generalized placeholder.
	for _, name := range e.vocab.Names {
		placeholder := regexp.MustCompile(regexp.QuoteMeta(e.vocab.Prefix + name + e.vocab.Suffix))
		alt := e.alternatives(name, exactMatching)
		substitute(placeholder, name, alt)
	}

	// Wildcard pass: any remaining generalized placeholder of the form
	// PREFIX+GenericName+digits*+SUFFIX (digits present for a minted
	// template position, absent for an un-substituted literal form). Its
	// capture groups are bound to the wildcard mask name "*".
	wildcardName := "*"
	wildcardPattern := regexp.MustCompile(
		regexp.QuoteMeta(e.vocab.Prefix+e.vocab.GenericName) + `\d*` + regexp.QuoteMeta(e.vocab.Suffix))
	substitute(wildcardPattern, wildcardName, ".+?")

	// Step 6: tolerate whitespace variance.
	escaped = strings.ReplaceAll(escaped, " ", `\s+`)

	anchored := "^" + escaped + "$"
	re, err := regexp.Compile(anchored)
	if err != nil {
		return nil, false
	}
	return &compiledTemplate{re: re, bindings: bindings}, true
}

// alternatives builds the ALT portion of a capture group per spec §4.5
// step 5: when exact_matching is requested and name isn't the wildcard,
// include every masker rule pattern bound to name (with numeric
// back-references neutralized); always include ".+?" as a loose fallback
// when exact_matching is false.
func (e *Extractor) alternatives(name string, exactMatching bool) string {
	var alts []string
	if exactMatching && name != "*" && e.vocab.RulesFor != nil {
		for _, rule := range e.vocab.RulesFor(name) {
			alts = append(alts, neutralizeBackrefs(rule.String()))
		}
	}
	if len(alts) == 0 {
		alts = append(alts, ".+?")
	}
	return strings.Join(alts, "|")
}

var backrefPattern = regexp.MustCompile(`\\([1-9][0-9]?)`)

// neutralizeBackrefs rewrites numeric back-references (\1 through \99)
// into non-capturing ".+?" groups, since the extractor's synthesized
// regex renumbers capture groups and the original back-reference indices
// no longer mean anything.
func neutralizeBackrefs(pattern string) string {
	return backrefPattern.ReplaceAllString(pattern, `(?:.+?)`)
}

// normalize replaces every configured extra delimiter with a space,
// mirroring the Drain engine's own tokenization pre-processing so the
// compiled regex and the line it matches against agree on delimiters.
func normalize(line string, extraDelimiters []string) string {
	out := line
	for _, d := range extraDelimiters {
		if d == "" {
			continue
		}
		out = strings.ReplaceAll(out, d, " ")
	}
	return out
}
