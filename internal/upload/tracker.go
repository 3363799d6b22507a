// Package upload tracks file transfers to the remote service and their
// progress.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

// State of a single transfer
type State int

const (
	StateUploading State = iota
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "uploading"
}

// Task is the client-side record of one transfer. Its ID is never the id
// the service assigns to the stored file.
type Task struct {
	ID            string
	Name          string
	TargetDir     string
	Progress      int
	Indeterminate bool
	State         State
	Err           error
	Entry         models.FileEntry
}

// Source is something that can be uploaded
type Source struct {
	Name string
	Size int64 // negative when unknown
	Open func() (io.ReadCloser, error)
}

// FileSource describes a local file
func FileSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to stat '%s': %w", path, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("'%s' is a directory", path)
	}
	return Source{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Sender delivers messages to the event loop from other goroutines.
// *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Merger receives uploaded entries, normally the navigator
type Merger interface {
	AppendUploaded(entry models.FileEntry) bool
}

// Messages for async operations
type ProgressMsg struct {
	TaskID string
	Sent   int64
	Total  int64
}

type DoneMsg struct {
	TaskID string
	Entry  models.FileEntry
	Err    error
}

// Tracker owns the set of upload tasks and the visibility of their panel
type Tracker struct {
	ctx    context.Context
	dir    remote.Directory
	sender Sender
	merger Merger
	log    zerolog.Logger

	tasks   []*Task
	visible bool
	err     error
}

// New creates a tracker. sender and merger may be nil.
func New(ctx context.Context, dir remote.Directory, sender Sender, merger Merger, logger zerolog.Logger) *Tracker {
	return &Tracker{
		ctx:    ctx,
		dir:    dir,
		sender: sender,
		merger: merger,
		log:    logger.With().Str("component", "upload").Logger(),
	}
}

// SetSender sets where progress goes. The program is usually created after
// the tracker.
func (t *Tracker) SetSender(s Sender) {
	t.sender = s
}

func (t *Tracker) find(id string) *Task {
	for _, task := range t.tasks {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// BeginUpload registers a task, shows the panel and returns the command
// that performs the transfer.
func (t *Tracker) BeginUpload(src Source, targetDir string) (string, tea.Cmd) {
	task := &Task{
		ID:            uuid.NewString(),
		Name:          src.Name,
		TargetDir:     targetDir,
		Indeterminate: src.Size < 0,
	}
	t.tasks = append(t.tasks, task)
	t.visible = true
	t.log.Info().Str("task", task.ID).Str("name", src.Name).Int64("size", src.Size).Msg("upload started")

	id, sender := task.ID, t.sender
	return id, func() tea.Msg {
		body, err := src.Open()
		if err != nil {
			return DoneMsg{TaskID: id, Err: fmt.Errorf("failed to open '%s': %w", src.Name, err)}
		}
		defer body.Close()

		last := -1
		entry, err := t.dir.Upload(t.ctx, remote.Upload{
			Name:   src.Name,
			Size:   src.Size,
			Body:   body,
			Parent: targetDir,
			Progress: func(sent, total int64) {
				// only wake the loop when the visible value changes
				if p := percent(sent, total); p != last && sender != nil {
					last = p
					sender.Send(ProgressMsg{TaskID: id, Sent: sent, Total: total})
				}
			},
		})
		return DoneMsg{TaskID: id, Entry: entry, Err: err}
	}
}

// percent is floor(sent*100/total) clamped to 0..100, or -1 when total is unknown
func percent(sent, total int64) int {
	if total <= 0 {
		return -1
	}
	p := int(sent * 100 / total)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// OnProgress applies a progress report. Progress never goes backwards, an
// unknown total marks the task indeterminate, unknown tasks are ignored.
func (t *Tracker) OnProgress(taskID string, sent, total int64) {
	task := t.find(taskID)
	if task == nil || task.State != StateUploading {
		return
	}
	p := percent(sent, total)
	if p < 0 {
		task.Indeterminate = true
		return
	}
	task.Indeterminate = false
	if p > task.Progress {
		task.Progress = p
	}
}

// OnComplete finishes a task. A successful entry is handed to the merger
// even if the task was removed in the meantime. Tasks stay until removed.
func (t *Tracker) OnComplete(taskID string, entry models.FileEntry, err error) {
	task := t.find(taskID)
	if err != nil {
		t.err = err
		if remote.IsFault(err) {
			t.log.Error().Err(err).Str("task", taskID).Msg("upload failed")
		} else {
			t.log.Warn().Err(err).Str("task", taskID).Msg("upload rejected")
		}
		if task != nil {
			task.State = StateFailed
			task.Err = err
		}
		return
	}

	t.log.Info().Str("task", taskID).Str("id", entry.ID).Msg("upload finished")
	if task != nil {
		task.State = StateDone
		task.Progress = 100
		task.Indeterminate = false
		task.Entry = entry
	}
	if t.merger != nil {
		t.merger.AppendUploaded(entry)
	}
}

// Update merges messages produced by upload commands
func (t *Tracker) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ProgressMsg:
		t.OnProgress(msg.TaskID, msg.Sent, msg.Total)
	case DoneMsg:
		t.OnComplete(msg.TaskID, msg.Entry, msg.Err)
	}
	return nil
}

// RemoveTask forgets a task. A running transfer is not interrupted.
func (t *Tracker) RemoveTask(taskID string) bool {
	for i, task := range t.tasks {
		if task.ID == taskID {
			t.tasks = append(t.tasks[:i], t.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// ClearFinished removes every task that is no longer uploading
func (t *Tracker) ClearFinished() {
	kept := t.tasks[:0]
	for _, task := range t.tasks {
		if task.State == StateUploading {
			kept = append(kept, task)
		}
	}
	t.tasks = kept
}

func (t *Tracker) Hide() { t.visible = false }
func (t *Tracker) Show() { t.visible = true }
func (t *Tracker) Visible() bool { return t.visible }
func (t *Tracker) Err() error { return t.err }
func (t *Tracker) ClearErr() { t.err = nil }

// Tasks returns a snapshot in start order
func (t *Tracker) Tasks() []Task {
	out := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, *task)
	}
	return out
}

// Active counts transfers still running
func (t *Tracker) Active() int {
	n := 0
	for _, task := range t.tasks {
		if task.State == StateUploading {
			n++
		}
	}
	return n
}
