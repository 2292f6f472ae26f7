package extract

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func testVocab() Vocabulary {
	numRule := regexp.MustCompile(`\d+`)
	return Vocabulary{
		Names: []string{"NUM"},
		RulesFor: func(name string) []*regexp.Regexp {
			if name == "NUM" {
				return []*regexp.Regexp{numRule}
			}
			return nil
		},
		Prefix:      "<",
		Suffix:      ">",
		GenericName: "TOKEN",
	}
}

func TestExtract_LooseMatching(t *testing.T) {
	e := New(testVocab(), nil, 10)
	bindings, ok := e.Extract("User <NUM> logged in", "User 123 logged in", false)
	require.True(t, ok)
	require.Len(t, bindings, 1)
	require.Equal(t, "123", bindings[0].Value)
	require.Equal(t, "NUM", bindings[0].Mask)
}

func TestExtract_ExactMatchingUsesMaskerRule(t *testing.T) {
	e := New(testVocab(), nil, 10)
	bindings, ok := e.Extract("User <NUM> logged in", "User 123 logged in", true)
	require.True(t, ok)
	require.Equal(t, "123", bindings[0].Value)
}

func TestExtract_ExactMatchingRejectsNonMatchingValue(t *testing.T) {
	e := New(testVocab(), nil, 10)
	_, ok := e.Extract("User <NUM> logged in", "User abc logged in", true)
	require.False(t, ok)
}

func TestExtract_GeneralizedWildcardPlaceholder(t *testing.T) {
	e := New(testVocab(), nil, 10)
	bindings, ok := e.Extract("Connected to <TOKEN1>", "Connected to 10.0.0.2", false)
	require.True(t, ok)
	require.Len(t, bindings, 1)
	require.Equal(t, "10.0.0.2", bindings[0].Value)
	require.Equal(t, "*", bindings[0].Mask)
}

func TestExtract_MultiplePlaceholders(t *testing.T) {
	e := New(testVocab(), nil, 10)
	bindings, ok := e.Extract("User <NUM> did <TOKEN1> at <TOKEN2>", "User 7 did login at 10pm", false)
	require.True(t, ok)
	require.Len(t, bindings, 3)
	require.Equal(t, "7", bindings[0].Value)
	require.Equal(t, "login", bindings[1].Value)
	require.Equal(t, "10pm", bindings[2].Value)
}

func TestExtract_NoMatchReturnsFalse(t *testing.T) {
	e := New(testVocab(), nil, 10)
	_, ok := e.Extract("User <NUM> logged in", "totally different line", false)
	require.False(t, ok)
}

func TestExtract_WhitespaceVarianceTolerated(t *testing.T) {
	e := New(testVocab(), nil, 10)
	bindings, ok := e.Extract("User <NUM> logged in", "User   123   logged   in", false)
	require.True(t, ok)
	require.Equal(t, "123", bindings[0].Value)
}

func TestExtract_CachesCompiledTemplate(t *testing.T) {
	e := New(testVocab(), nil, 10)
	_, ok1 := e.Extract("User <NUM> logged in", "User 1 logged in", false)
	_, ok2 := e.Extract("User <NUM> logged in", "User 2 logged in", false)
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, 1, e.cache.Len())
}
