// Package models holds the entities shared by the remote backends and the client components.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EntryType distinguishes files from directories
type EntryType string

const (
	TypeFile EntryType = "file"
	TypeDir  EntryType = "dir"
)

// FileEntry is a node of the remote tree
type FileEntry struct {
	ID     string    `json:"_id"`
	Name   string    `json:"name"`
	Type   EntryType `json:"type"`
	Parent string    `json:"parent,omitempty"`
	Size   int64     `json:"size"`
	Date   time.Time `json:"date"`
}

// IsDir reports whether the entry is a directory
func (e FileEntry) IsDir() bool {
	return e.Type == TypeDir
}

// SortOrder is the single listing sort key
type SortOrder string

const (
	SortNone SortOrder = ""
	SortName SortOrder = "name"
	SortType SortOrder = "type"
	SortDate SortOrder = "date"
)

// SortOrders lists the orders in the sequence the UI cycles through them
var SortOrders = []SortOrder{SortNone, SortName, SortType, SortDate}

// ParseSortOrder converts user input into a SortOrder
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SortNone, nil
	case "name":
		return SortName, nil
	case "type":
		return SortType, nil
	case "date":
		return SortDate, nil
	}
	return SortNone, fmt.Errorf("unknown sort order %q (want none, name, type or date)", s)
}

// Next returns the order following s in SortOrders
func (s SortOrder) Next() SortOrder {
	for i, o := range SortOrders {
		if o == s {
			return SortOrders[(i+1)%len(SortOrders)]
		}
	}
	return SortNone
}

func (s SortOrder) String() string {
	if s == SortNone {
		return "none"
	}
	return string(s)
}

// Less reports whether a sorts before b under s. SortNone never reorders.
func (s SortOrder) Less(a, b FileEntry) bool {
	switch s {
	case SortName:
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	case SortType:
		// directories first, matching the server's ordering of "dir" < "file"
		return a.Type < b.Type
	case SortDate:
		return a.Date.Before(b.Date)
	}
	return false
}

// SortEntries sorts entries in place, keeping the relative order of equal keys
func SortEntries(entries []FileEntry, order SortOrder) {
	if order == SortNone {
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return order.Less(entries[i], entries[j])
	})
}

// InsertSorted inserts e after every entry that does not sort after it.
// With SortNone e is appended.
func InsertSorted(entries []FileEntry, e FileEntry, order SortOrder) []FileEntry {
	if order == SortNone {
		return append(entries, e)
	}
	i := sort.Search(len(entries), func(i int) bool {
		return order.Less(e, entries[i])
	})
	entries = append(entries, FileEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// ViewMode selects how a listing is rendered
type ViewMode string

const (
	ViewList ViewMode = "list"
	ViewGrid ViewMode = "grid"
)

// FormatSize formats file size in human-readable format
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
