package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalKeepsNewestFirst(t *testing.T) {
	j := NewJournal(3, nil)
	j.Record(RunRecord{Job: "a"})
	j.Record(RunRecord{Job: "b"})

	recent := j.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Job)
	assert.Equal(t, "a", recent[1].Job)
}

func TestJournalOverwritesOldestWhenFull(t *testing.T) {
	j := NewJournal(3, nil)
	for _, name := range []string{"a", "b", "c", "d"} {
		j.Record(RunRecord{Job: name})
	}

	recent := j.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].Job)
	assert.Equal(t, "c", recent[1].Job)
	assert.Equal(t, "b", recent[2].Job)
}

func TestJournalLimitCapsResult(t *testing.T) {
	j := NewJournal(5, nil)
	for _, name := range []string{"a", "b", "c"} {
		j.Record(RunRecord{Job: name})
	}

	recent := j.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Job)
}

func TestJournalAssignsRunIDs(t *testing.T) {
	j := NewJournal(2, nil)
	j.Record(RunRecord{Job: "a"})

	recent := j.Recent(1)
	require.Len(t, recent, 1)
	assert.NotEmpty(t, recent[0].ID)
}
