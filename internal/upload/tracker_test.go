package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote/remotetest"
)

type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// drain hands every recorded message to the tracker
func (r *recorder) drain(t *Tracker) int {
	r.mu.Lock()
	msgs := r.msgs
	r.msgs = nil
	r.mu.Unlock()
	for _, m := range msgs {
		t.Update(m)
	}
	return len(msgs)
}

type merged struct{ entries []models.FileEntry }

func (m *merged) AppendUploaded(e models.FileEntry) bool {
	m.entries = append(m.entries, e)
	return true
}

func source(name string, data []byte, size int64) Source {
	return Source{
		Name: name,
		Size: size,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func setup(t *testing.T) (*Tracker, *recorder, *merged, *remotetest.Service) {
	t.Helper()
	svc := remotetest.New()
	rec := &recorder{}
	m := &merged{}
	return New(context.Background(), svc, rec, m, zerolog.Nop()), rec, m, svc
}

func TestBeginUploadRegistersTask(t *testing.T) {
	tr, _, _, _ := setup(t)
	assert.False(t, tr.Visible())

	id, cmd := tr.BeginUpload(source("a.txt", []byte("0123456789"), 10), "")
	require.NotNil(t, cmd)

	tasks := tr.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)
	assert.Equal(t, "a.txt", tasks[0].Name)
	assert.Equal(t, 0, tasks[0].Progress)
	assert.Equal(t, StateUploading, tasks[0].State)
	assert.True(t, tr.Visible())
	assert.Equal(t, 1, tr.Active())
}

func TestUploadProgressAndCompletion(t *testing.T) {
	tr, rec, m, svc := setup(t)
	id, cmd := tr.BeginUpload(source("a.txt", []byte("0123456789"), 10), "")

	done := cmd()
	assert.Equal(t, 3, rec.drain(tr))
	assert.Equal(t, 100, tr.Tasks()[0].Progress)

	tr.Update(done)
	task := tr.Tasks()[0]
	assert.Equal(t, StateDone, task.State)
	assert.Equal(t, 100, task.Progress)
	assert.NotEqual(t, id, task.Entry.ID)

	require.Len(t, m.entries, 1)
	assert.Equal(t, "a.txt", m.entries[0].Name)
	_, ok := svc.Entry(m.entries[0].ID)
	assert.True(t, ok)

	// finished tasks stay until removed
	assert.Len(t, tr.Tasks(), 1)
	assert.Equal(t, 0, tr.Active())
}

func TestProgressIsMonotonic(t *testing.T) {
	tr, _, _, _ := setup(t)
	id, _ := tr.BeginUpload(source("a", nil, 200), "")

	tr.OnProgress(id, 101, 200)
	assert.Equal(t, 50, tr.Tasks()[0].Progress)

	tr.OnProgress(id, 20, 200)
	assert.Equal(t, 50, tr.Tasks()[0].Progress)

	tr.OnProgress(id, 199, 200)
	assert.Equal(t, 99, tr.Tasks()[0].Progress)

	tr.OnProgress(id, 500, 200)
	assert.Equal(t, 100, tr.Tasks()[0].Progress)
}

func TestUnknownTotalIsIndeterminate(t *testing.T) {
	tr, _, _, _ := setup(t)
	id, _ := tr.BeginUpload(source("a", nil, 10), "")

	tr.OnProgress(id, 5, 0)
	task := tr.Tasks()[0]
	assert.True(t, task.Indeterminate)
	assert.Equal(t, 0, task.Progress)

	id2, _ := tr.BeginUpload(source("b", nil, -1), "")
	assert.True(t, tr.Tasks()[1].Indeterminate)

	tr.OnComplete(id2, models.FileEntry{ID: "x"}, nil)
	assert.False(t, tr.Tasks()[1].Indeterminate)
	assert.Equal(t, 100, tr.Tasks()[1].Progress)
}

func TestConcurrentUploadsAreIndependent(t *testing.T) {
	tr, _, _, _ := setup(t)
	first, _ := tr.BeginUpload(source("one", nil, 100), "")
	second, _ := tr.BeginUpload(source("two", nil, 100), "")
	require.NotEqual(t, first, second)

	tr.OnProgress(first, 30, 100)
	tr.OnProgress(second, 70, 100)
	tasks := tr.Tasks()
	assert.Equal(t, 30, tasks[0].Progress)
	assert.Equal(t, 70, tasks[1].Progress)

	assert.True(t, tr.RemoveTask(first))
	tr.OnProgress(first, 90, 100)
	tr.OnProgress(second, 80, 100)

	tasks = tr.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, second, tasks[0].ID)
	assert.Equal(t, 80, tasks[0].Progress)
}

func TestRemovedTaskStillMerges(t *testing.T) {
	tr, rec, m, _ := setup(t)
	id, cmd := tr.BeginUpload(source("late.txt", []byte("data"), 4), "")
	tr.RemoveTask(id)

	tr.Update(cmd())
	rec.drain(tr)
	assert.Empty(t, tr.Tasks())
	assert.Len(t, m.entries, 1)
}

func TestFailedUpload(t *testing.T) {
	tr, _, m, svc := setup(t)
	svc.FailNext("Upload", errors.New("connection reset"))

	_, cmd := tr.BeginUpload(source("a", []byte("x"), 1), "")
	tr.Update(cmd())

	task := tr.Tasks()[0]
	assert.Equal(t, StateFailed, task.State)
	require.Error(t, task.Err)
	require.Error(t, tr.Err())
	assert.Empty(t, m.entries)

	tr.ClearFinished()
	assert.Empty(t, tr.Tasks())
}

func TestOpenFailure(t *testing.T) {
	tr, _, _, svc := setup(t)
	src := Source{Name: "gone", Size: 1, Open: func() (io.ReadCloser, error) { return nil, os.ErrNotExist }}

	_, cmd := tr.BeginUpload(src, "")
	tr.Update(cmd())
	assert.Equal(t, StateFailed, tr.Tasks()[0].State)
	assert.ErrorIs(t, tr.Tasks()[0].Err, os.ErrNotExist)
	assert.Equal(t, 0, svc.Calls("Upload"))
}

func TestHideShow(t *testing.T) {
	tr, _, _, _ := setup(t)
	tr.BeginUpload(source("a", nil, 1), "")
	tr.Hide()
	assert.False(t, tr.Visible())
	assert.Len(t, tr.Tasks(), 1)
	tr.Show()
	assert.True(t, tr.Visible())
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	src, err := FileSource(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", src.Name)
	assert.Equal(t, int64(5), src.Size)

	body, err := src.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "hello", string(data))

	_, err = FileSource(dir)
	assert.Error(t, err)
}
