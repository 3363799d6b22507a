// Package navigator keeps the directory the user is looking at, the way back
// to where they came from and the listing currently on screen.
//
// Every operation mutates state immediately and returns a tea.Cmd that
// performs the remote call. The message the command produces must be passed
// back through Update, on the same goroutine that called the operation.
package navigator

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

// ErrEmptyName is recorded when a directory name is blank
var ErrEmptyName = errors.New("directory name cannot be empty")

// Status describes the latest listing request
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReceived
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReceived:
		return "received"
	case StatusRejected:
		return "rejected"
	}
	return "idle"
}

// Messages for async operations
type ListingMsg struct {
	seq     int
	dir     string
	search  bool
	entries []models.FileEntry
	err     error
}

type CreatedMsg struct {
	Entry models.FileEntry
	Err   error
}

type DeletedMsg struct {
	ID  string
	Err error
}

// Navigator owns the navigation state and the displayed listing
type Navigator struct {
	ctx context.Context
	dir remote.Directory
	log zerolog.Logger

	currentDir string
	stack      []string
	names      map[string]string
	sort       models.SortOrder
	view       models.ViewMode
	listing    []models.FileEntry
	status     Status
	err        error
	searching  bool
	query      string
	seq        int
}

// New creates a navigator at the root. ctx bounds every remote call.
func New(ctx context.Context, dir remote.Directory, logger zerolog.Logger) *Navigator {
	return &Navigator{
		ctx:   ctx,
		dir:   dir,
		log:   logger.With().Str("component", "navigator").Logger(),
		names: map[string]string{},
		view:  models.ViewList,
	}
}

func (n *Navigator) CurrentDir() string { return n.currentDir }
func (n *Navigator) Sort() models.SortOrder { return n.sort }
func (n *Navigator) View() models.ViewMode { return n.view }
func (n *Navigator) Status() Status { return n.status }
func (n *Navigator) Err() error { return n.err }
func (n *Navigator) Searching() bool { return n.searching }
func (n *Navigator) Query() string { return n.query }
func (n *Navigator) Loading() bool { return n.status == StatusLoading }
func (n *Navigator) Fault() bool { return remote.IsFault(n.err) }
func (n *Navigator) ClearErr() { n.err = nil }

// Stack returns a copy of the back stack, oldest first
func (n *Navigator) Stack() []string {
	return append([]string(nil), n.stack...)
}

// Listing returns a copy of the displayed entries
func (n *Navigator) Listing() []models.FileEntry {
	return append([]models.FileEntry(nil), n.listing...)
}

// Path returns the names of the visited directories down to the current one
func (n *Navigator) Path() []string {
	var names []string
	for _, id := range append(n.Stack(), n.currentDir) {
		if id == "" {
			continue
		}
		names = append(names, n.names[id])
	}
	return names
}

// Reset returns to the root with an empty listing, as after signing out
func (n *Navigator) Reset() {
	n.currentDir = ""
	n.stack = nil
	n.names = map[string]string{}
	n.listing = nil
	n.status = StatusIdle
	n.err = nil
	n.searching, n.query = false, ""
	// results still in flight belong to the previous session
	n.seq++
}

// OpenDirectory enters entry. Non-directories are ignored.
func (n *Navigator) OpenDirectory(entry models.FileEntry) tea.Cmd {
	if !entry.IsDir() {
		return nil
	}
	n.stack = append(n.stack, n.currentDir)
	n.currentDir = entry.ID
	n.names[entry.ID] = entry.Name
	n.searching, n.query = false, ""
	return n.list()
}

// GoBack returns to the previously open directory. With nothing to go back
// to it stays where it is and refreshes.
func (n *Navigator) GoBack() tea.Cmd {
	if len(n.stack) > 0 {
		n.currentDir = n.stack[len(n.stack)-1]
		n.stack = n.stack[:len(n.stack)-1]
	}
	n.searching, n.query = false, ""
	return n.list()
}

// SetSort changes the sort key and refreshes
func (n *Navigator) SetSort(order models.SortOrder) tea.Cmd {
	n.sort = order
	return n.Refresh()
}

// SetView only changes how the listing is rendered
func (n *Navigator) SetView(mode models.ViewMode) {
	n.view = mode
}

// Refresh repeats the active listing: the search when searching, otherwise
// the current directory.
func (n *Navigator) Refresh() tea.Cmd {
	if n.searching {
		return n.search()
	}
	return n.list()
}

// Search switches to tree-wide results for query. An empty query goes back
// to the current directory.
func (n *Navigator) Search(query string) tea.Cmd {
	query = strings.TrimSpace(query)
	if query == "" {
		n.searching, n.query = false, ""
		return n.list()
	}
	n.searching, n.query = true, query
	return n.search()
}

func (n *Navigator) next() int {
	n.seq++
	n.status = StatusLoading
	return n.seq
}

func (n *Navigator) list() tea.Cmd {
	seq, dir, order := n.next(), n.currentDir, n.sort
	n.log.Debug().Int("seq", seq).Str("dir", dir).Stringer("sort", order).Msg("listing directory")
	return func() tea.Msg {
		entries, err := n.dir.List(n.ctx, dir, order)
		return ListingMsg{seq: seq, dir: dir, entries: entries, err: err}
	}
}

func (n *Navigator) search() tea.Cmd {
	seq, query := n.next(), n.query
	n.log.Debug().Int("seq", seq).Str("query", query).Msg("searching")
	return func() tea.Msg {
		entries, err := n.dir.Search(n.ctx, query)
		return ListingMsg{seq: seq, search: true, entries: entries, err: err}
	}
}

// CreateDirectory creates name inside the current directory
func (n *Navigator) CreateDirectory(name string) tea.Cmd {
	name = strings.TrimSpace(name)
	if name == "" {
		n.err = ErrEmptyName
		return nil
	}
	parent := n.currentDir
	return func() tea.Msg {
		entry, err := n.dir.Create(n.ctx, name, parent, models.TypeDir)
		return CreatedMsg{Entry: entry, Err: err}
	}
}

// DeleteEntry removes entry on the service
func (n *Navigator) DeleteEntry(entry models.FileEntry) tea.Cmd {
	id := entry.ID
	return func() tea.Msg {
		deleted, err := n.dir.Delete(n.ctx, id)
		if err == nil && deleted == "" {
			deleted = id
		}
		return DeletedMsg{ID: deleted, Err: err}
	}
}

// AppendUploaded merges an entry created elsewhere into the listing. It is
// only shown when it belongs to the current directory and no search is
// active; the position follows the current sort. Reports whether the entry
// was inserted.
func (n *Navigator) AppendUploaded(entry models.FileEntry) bool {
	if n.searching || entry.Parent != n.currentDir {
		return false
	}
	for _, e := range n.listing {
		if e.ID == entry.ID {
			return false
		}
	}
	n.listing = models.InsertSorted(n.listing, entry, n.sort)
	return true
}

// Update merges the result of a command issued by the navigator
func (n *Navigator) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ListingMsg:
		return n.onListing(msg)

	case CreatedMsg:
		if msg.Err != nil {
			n.fail("create directory", msg.Err)
			return nil
		}
		n.err = nil
		if !n.AppendUploaded(msg.Entry) {
			n.log.Debug().Str("id", msg.Entry.ID).Msg("created entry is not in view")
		}

	case DeletedMsg:
		if msg.Err != nil {
			n.fail("delete", msg.Err)
			return nil
		}
		n.err = nil
		n.remove(msg.ID)
		if msg.ID == n.currentDir {
			return n.GoBack()
		}
	}
	return nil
}

func (n *Navigator) onListing(msg ListingMsg) tea.Cmd {
	if msg.seq != n.seq {
		n.log.Debug().Int("seq", msg.seq).Int("latest", n.seq).Msg("dropping stale listing")
		return nil
	}
	if msg.err != nil {
		// the directory vanished under us: skip it and keep going back
		if !msg.search && msg.dir != "" && remote.IsNotFound(msg.err) {
			n.log.Warn().Str("dir", msg.dir).Msg("directory no longer exists")
			n.evict(msg.dir)
			if msg.dir == n.currentDir {
				n.currentDir = ""
				if len(n.stack) > 0 {
					return n.GoBack()
				}
				return n.list()
			}
		}
		n.fail("list", msg.err)
		n.status = StatusRejected
		return nil
	}

	entries := msg.entries
	if entries == nil {
		entries = []models.FileEntry{}
	}
	if msg.search {
		models.SortEntries(entries, n.sort)
	}
	n.listing = entries
	n.status = StatusReceived
	n.err = nil
	return nil
}

// remove drops id from the listing and from the way back
func (n *Navigator) remove(id string) {
	kept := n.listing[:0]
	for _, e := range n.listing {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	n.listing = kept
	n.evict(id)
}

func (n *Navigator) evict(id string) {
	kept := n.stack[:0]
	for _, s := range n.stack {
		if s != id {
			kept = append(kept, s)
		}
	}
	n.stack = kept
	delete(n.names, id)
}

func (n *Navigator) fail(op string, err error) {
	n.err = err
	if remote.IsFault(err) {
		n.log.Error().Err(err).Str("op", op).Msg("request failed")
		return
	}
	n.log.Warn().Err(err).Str("op", op).Msg("request rejected")
}
