package tree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize_TrimsAndSplitsOnWhitespace(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, Tokenize("  a   b c  ", nil))
}

func TestTokenize_AppliesExtraDelimiters(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, Tokenize("a,b,c", []string{","}))
}

func TestTokenize_EmptyStringYieldsNoTokens(t *testing.T) {
	require.Empty(t, Tokenize("   ", nil))
}

func TestAddAndSearch_SingleCluster(t *testing.T) {
	root := New()
	root.AddCluster(1, []string{"a", "b", "c"}, 2, 100, true, "<*>", func(int) bool { return true })
	got := root.Search([]string{"a", "b", "c"}, 2)
	require.Equal(t, []int{1}, got)
}

func TestAddAndSearch_EmptyTokens(t *testing.T) {
	root := New()
	root.AddCluster(7, nil, 2, 100, true, "<*>", func(int) bool { return true })
	require.Equal(t, []int{7}, root.Search(nil, 2))
}

func TestSearch_NoPathReturnsNil(t *testing.T) {
	root := New()
	root.AddCluster(1, []string{"a", "b", "c"}, 2, 100, true, "<*>", func(int) bool { return true })
	require.Nil(t, root.Search([]string{"x", "y", "z"}, 2))
}

func TestAddCluster_NumericTokenRoutesToWildcard(t *testing.T) {
	root := New()
	root.AddCluster(1, []string{"connect", "123", "ok"}, 3, 100, true, "<*>", func(int) bool { return true })
	connectNode := root.Children["connect"]
	require.NotNil(t, connectNode)
	require.NotNil(t, connectNode.Wildcard)
	require.Equal(t, []int{1}, root.Search([]string{"connect", "999", "ok"}, 3))
}

func TestAddCluster_MaxChildrenOverflowRoutesToWildcard(t *testing.T) {
	root := New()
	// maxChildren=3 (2 literal slots + 1 reserved wildcard slot), branching
	// on the first of two tokens: "A" and "B" get literal children, "C"
	// must route through the reserved wildcard slot.
	root.AddCluster(1, []string{"A", "suffix"}, 2, 3, false, "<*>", func(int) bool { return true })
	root.AddCluster(2, []string{"B", "suffix"}, 2, 3, false, "<*>", func(int) bool { return true })
	root.AddCluster(3, []string{"C", "suffix"}, 2, 3, false, "<*>", func(int) bool { return true })

	require.Contains(t, root.Children, "A")
	require.Contains(t, root.Children, "B")
	require.NotNil(t, root.Wildcard)

	wildcardIDs := root.Search([]string{"D", "suffix"}, 2)
	require.Equal(t, []int{3}, wildcardIDs)
}

func TestRemoveStaleClusters(t *testing.T) {
	alive := map[int]bool{1: true, 3: true}
	out := RemoveStaleClusters([]int{1, 2, 3}, func(id int) bool { return alive[id] })
	require.Equal(t, []int{1, 3}, out)
}

func TestWalk_VisitsAllLeaves(t *testing.T) {
	root := New()
	root.AddCluster(1, []string{"a", "x"}, 3, 100, false, "<*>", func(int) bool { return true })
	root.AddCluster(2, []string{"a", "y"}, 3, 100, false, "<*>", func(int) bool { return true })

	var seen []int
	root.Walk(func(id int) { seen = append(seen, id) })
	require.ElementsMatch(t, []int{1, 2}, seen)
}
