package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestParseSortOrder(t *testing.T) {
	for in, want := range map[string]SortOrder{"": SortNone, "none": SortNone, "Name": SortName, "type": SortType, " date ": SortDate} {
		got, err := ParseSortOrder(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSortOrder("size")
	assert.Error(t, err)
}

func TestSortOrderNextCycles(t *testing.T) {
	o := SortNone
	seen := []SortOrder{}
	for range SortOrders {
		o = o.Next()
		seen = append(seen, o)
	}
	assert.Equal(t, []SortOrder{SortName, SortType, SortDate, SortNone}, seen)
}

func TestSortEntries(t *testing.T) {
	now := time.Now()
	entries := []FileEntry{
		{Name: "b.txt", Type: TypeFile, Date: now},
		{Name: "A", Type: TypeDir, Date: now.Add(time.Hour)},
		{Name: "c", Type: TypeDir, Date: now.Add(-time.Hour)},
	}

	SortEntries(entries, SortName)
	assert.Equal(t, []string{"A", "b.txt", "c"}, names(entries))

	SortEntries(entries, SortDate)
	assert.Equal(t, []string{"c", "b.txt", "A"}, names(entries))

	SortEntries(entries, SortType)
	assert.Equal(t, []string{"c", "A", "b.txt"}, names(entries))

	SortEntries(entries, SortNone)
	assert.Equal(t, []string{"c", "A", "b.txt"}, names(entries))
}

func TestInsertSorted(t *testing.T) {
	entries := []FileEntry{{Name: "alpha"}, {Name: "gamma"}}

	entries = InsertSorted(entries, FileEntry{Name: "beta"}, SortName)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names(entries))

	entries = InsertSorted(entries, FileEntry{Name: "zeta"}, SortName)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "zeta"}, names(entries))

	entries = InsertSorted(entries, FileEntry{Name: "aaa"}, SortNone)
	assert.Equal(t, "aaa", entries[len(entries)-1].Name)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
