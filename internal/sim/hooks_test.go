package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactLogLookup(t *testing.T) {
	l := NewContactLog(7)
	l.Record(3, 1, 2)
	l.Record(3, 1, 5)
	l.Record(4, 9, 1)
	l.Record(4, 2, 5)
	l.Record(5, 1, 2) // repeat pairing on a later day

	got := l.ContactsOf([]int32{1}, 3, 6)
	assert.Equal(t, []int32{2, 5, 9}, got, "both directions, deduplicated, sorted")

	got = l.ContactsOf([]int32{1}, 4, 5)
	assert.Equal(t, []int32{9}, got, "window is half open")

	assert.Nil(t, l.ContactsOf([]int32{1}, 0, 3))
	assert.Nil(t, l.ContactsOf(nil, 0, 10))
}

func TestContactLogExcludesIndexCases(t *testing.T) {
	l := NewContactLog(7)
	l.Record(1, 1, 2)
	l.Record(1, 2, 3)

	got := l.ContactsOf([]int32{1, 2}, 0, 2)
	assert.Equal(t, []int32{3}, got, "contacts between index cases are not re-reported")
}

func TestContactLogPrune(t *testing.T) {
	l := NewContactLog(3)
	l.Record(1, 0, 1)
	l.Record(2, 0, 2)
	l.Record(4, 0, 3)
	assert.Equal(t, 3, l.Len())

	l.Prune(4) // drops days <= 1
	assert.Equal(t, 2, l.Len())
	assert.Nil(t, l.ContactsOf([]int32{0}, 1, 2))

	l.Clear()
	assert.Zero(t, l.Len())
}

func TestContactLogMinimumWindow(t *testing.T) {
	l := NewContactLog(0)
	l.Record(5, 1, 2)
	l.Prune(5)
	assert.Equal(t, 1, l.Len(), "a degenerate window keeps the current day")
	l.Prune(6)
	assert.Zero(t, l.Len())
}
