package keys

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveExample(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a", "b"})
	assert.False(t, s.Modified())

	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Add("c"))
	assert.True(t, s.Modified())
	assert.Equal(t, []string{"b", "c"}, s.Current())

	s.MarkSaved()
	assert.Equal(t, []string{"b", "c"}, s.Original())
	assert.False(t, s.Modified())
	assert.Equal(t, "b,c", s.Joined())
}

func TestModifiedIgnoresOrder(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a", "b"})
	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Add("a"))
	assert.Equal(t, []string{"b", "a"}, s.Current())
	assert.False(t, s.Modified())
}

func TestAddRejectsDuplicateWithoutChange(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a"})
	before := s.Snapshot()

	assert.ErrorIs(t, s.Add(" a "), ErrDuplicateKey)
	assert.ErrorIs(t, s.Add("   "), ErrEmptyKey)
	assert.Equal(t, before, s.Snapshot())
	assert.False(t, s.Modified())
}

func TestEdit(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a", "b", "c"})

	require.NoError(t, s.Edit("b", "b"))
	assert.False(t, s.Modified())

	assert.ErrorIs(t, s.Edit("b", "c"), ErrDuplicateKey)
	assert.ErrorIs(t, s.Edit("zz", "d"), ErrKeyNotFound)
	assert.ErrorIs(t, s.Edit("b", " "), ErrEmptyKey)

	require.NoError(t, s.Edit("b", " d "))
	assert.Equal(t, []string{"a", "d", "c"}, s.Current())
	assert.True(t, s.Modified())
}

func TestDeleteMissing(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a"})
	assert.ErrorIs(t, s.Delete("b"), ErrKeyNotFound)
	assert.Equal(t, []string{"a"}, s.Current())
}

func TestBulkAddSkipsDuplicates(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a", "b"})

	// 6 non-blank lines: "a" and "b" exist, the second "x" repeats.
	text := "a\n x \n\nb\ny\nx\nz\n"
	plan := s.PlanBulkAdd(text)
	assert.Equal(t, []string{"x", "y", "z"}, plan.Add)
	assert.Equal(t, []string{"a", "b", "x"}, plan.Duplicates)

	added, skipped := s.BulkAdd(text)
	assert.Equal(t, 3, added)
	assert.Equal(t, 3, skipped)
	assert.Equal(t, []string{"a", "b", "x", "y", "z"}, s.Current())
}

func TestBulkDeleteCounts(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a", "b", "c"})

	removed, notFound := s.BulkDelete("a\nq\n\nc\n")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, notFound)
	assert.Equal(t, []string{"b"}, s.Current())
}

func TestInvalidPrunedOnMutation(t *testing.T) {
	s := NewStore()
	s.Load([]string{"a", "b", "c"})
	s.setState("a", CheckState{Status: StatusInvalid, Message: "bad"})
	s.setState("b", CheckState{Status: StatusFailed, Message: "timeout"})
	s.setState("c", CheckState{Status: StatusValid})
	assert.Equal(t, []string{"a", "b"}, s.Invalid())

	require.NoError(t, s.Delete("a"))
	assert.Equal(t, []string{"b"}, s.Invalid())
	assert.Equal(t, CheckState{}, s.State("a"))

	require.NoError(t, s.Edit("b", "b2"))
	assert.Empty(t, s.Invalid())

	// Valid again drops the key from the invalid list.
	s.setState("c", CheckState{Status: StatusInvalid})
	s.setState("c", CheckState{Status: StatusValid})
	assert.Empty(t, s.Invalid())

	// A key removed mid-check is not resurrected.
	s.setState("gone", CheckState{Status: StatusInvalid})
	assert.Empty(t, s.Invalid())
}

func TestRestoreSnapshot(t *testing.T) {
	s := NewStore()
	s.Restore(Snapshot{
		Current:  []string{"a", "c"},
		Original: []string{"a", "b"},
		Invalid:  []string{"c", "b"},
	})
	assert.True(t, s.Modified())
	assert.Equal(t, []string{"c"}, s.Invalid())
	assert.Equal(t, StatusInvalid, s.State("c").Status)
}

func TestRestoreKeepsCheckStates(t *testing.T) {
	s := NewStore()
	s.Restore(Snapshot{
		Current:  []string{"a", "b", "c"},
		Original: []string{"a", "b", "c"},
		Invalid:  []string{"b", "c"},
		States: map[string]CheckState{
			"a": {Status: StatusValid, Message: "key is valid"},
			"b": {Status: StatusFailed, Message: "timeout"},
			"c": {Status: StatusInvalid, Message: "API key not valid"},
		},
	})
	assert.Equal(t, CheckState{Status: StatusValid, Message: "key is valid"}, s.State("a"))
	assert.Equal(t, CheckState{Status: StatusFailed, Message: "timeout"}, s.State("b"))
	assert.Equal(t, CheckState{Status: StatusInvalid, Message: "API key not valid"}, s.State("c"))
	assert.Equal(t, []string{"b", "c"}, s.Invalid())

	snap := s.Snapshot()
	assert.Len(t, snap.States, 3)
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseList(" a, b,,c ,"))
	assert.Empty(t, ParseList(""))
}

// TestModifiedMatchesMultiset drives random edits and compares the flag with
// a sorted comparison against the last saved list.
func TestModifiedMatchesMultiset(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := []string{"k1", "k2", "k3", "k4", "k5"}

	s := NewStore()
	s.Load([]string{"k1", "k2"})
	saved := []string{"k1", "k2"}

	for step := 0; step < 500; step++ {
		key := pool[rng.Intn(len(pool))]
		switch rng.Intn(4) {
		case 0:
			s.Add(key)
		case 1:
			s.Delete(key)
		case 2:
			s.Edit(key, pool[rng.Intn(len(pool))])
		case 3:
			s.MarkSaved()
			saved = s.Current()
		}
		assert.Equal(t, !sameSorted(s.Current(), saved), s.Modified(), "step %d", step)
	}
}

func sameSorted(a, b []string) bool {
	a = append([]string(nil), a...)
	b = append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
