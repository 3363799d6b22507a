package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmtnm/cloudisk/internal/config"
	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote/remotetest"
)

type fixture struct {
	t      *testing.T
	svc    *remotetest.Service
	tokens *config.TokenStore
	cfg    string
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(cfg, []byte("[default]\nbackend = rest\nlog_level = quiet\ndownload_dir = "+dir+"\n"), 0o600))
	return &fixture{
		t:      t,
		svc:    remotetest.New(),
		tokens: config.NewTokenStore(filepath.Join(dir, "credentials"), config.DefaultServer),
		cfg:    cfg,
		dir:    dir,
	}
}

// run executes one command line against the in-memory service
func (f *fixture) run(stdin string, args ...string) (string, string, error) {
	f.t.Helper()
	a := &app{
		v: config.NewViper(),
		open: func(context.Context, *app) (*backend, error) {
			return &backend{svc: f.svc, creds: f.tokens, title: "cloudisk"}, nil
		},
	}
	cmd := newRootCmd(a)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", f.cfg}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (f *fixture) signIn() {
	f.t.Helper()
	f.svc.AddAccount("me@example.com", "secret")
	res, err := f.svc.Login(context.Background(), models.Credentials{Email: "me@example.com", Password: "secret"})
	require.NoError(f.t, err)
	require.NoError(f.t, f.tokens.Save(res.Token))
}

func TestLoginStoresToken(t *testing.T) {
	f := newFixture(t)
	f.svc.AddAccount("me@example.com", "secret")

	out, _, err := f.run("secret\n", "login", "--email", "me@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as me@example.com")

	token, err := f.tokens.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	out, _, err = f.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Account: me@example.com")
	assert.Contains(t, out, "Avatar:  none")
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t)
	f.svc.AddAccount("me@example.com", "secret")

	_, stderr, err := f.run("wrong\n", "login", "-e", "me@example.com", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, stderr, "Invalid password")

	_, stderr, err = f.run("abc\n", "login", "-e", "me@example.com", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, stderr, "password")
	assert.Equal(t, 1, f.svc.Calls("Login"))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run("secret\n", "register", "-e", "new@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "new@example.com")

	_, stderr, err := f.run("secret\n", "register", "-e", "new@example.com", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, stderr, "already exist")
}

func TestCommandsNeedSession(t *testing.T) {
	f := newFixture(t)

	_, stderr, err := f.run("", "ls")
	require.Error(t, err)
	assert.Contains(t, stderr, "not signed in")
}

func TestLogoutNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	_, stderr, err := f.run("", "logout")
	require.Error(t, err)
	assert.Contains(t, stderr, "--yes")
	token, _ := f.tokens.Load()
	assert.NotEmpty(t, token)

	_, _, err = f.run("", "logout", "--yes")
	require.NoError(t, err)
	token, _ = f.tokens.Load()
	assert.Empty(t, token)
}

func TestMkdirLsRm(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	f.svc.AddFile("b.txt", "", []byte("b"))

	out, _, err := f.run("", "mkdir", "Photos")
	require.NoError(t, err)
	assert.Contains(t, out, "Created 'Photos'")

	out, _, err = f.run("", "ls", "--sort", "name")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "b.txt"), strings.Index(out, "Photos/"))

	_, stderr, err := f.run("", "mkdir", "Photos")
	require.Error(t, err)
	assert.Contains(t, stderr, "already exists")

	var photos models.FileEntry
	listing, err := f.svc.List(context.Background(), "", models.SortNone)
	require.NoError(t, err)
	for _, e := range listing {
		if e.Name == "Photos" {
			photos = e
		}
	}
	require.NotEmpty(t, photos.ID)

	out, _, err = f.run("", "ls", photos.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "No files found.")

	out, _, err = f.run("", "rm", photos.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+photos.ID)

	_, _, err = f.run("", "rm", photos.ID)
	assert.Error(t, err)

	_, stderr, err = f.run("", "ls", photos.ID)
	require.Error(t, err)
	assert.Contains(t, stderr, "not found")
}

func TestLsRejectsUnknownSort(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	_, stderr, err := f.run("", "ls", "--sort", "size")
	require.Error(t, err)
	assert.Contains(t, stderr, "unknown sort order")
}

func TestUploadAndDownload(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	docs := f.svc.AddDir("docs", "")

	first := filepath.Join(t.TempDir(), "one.txt")
	second := filepath.Join(t.TempDir(), "two.txt")
	require.NoError(t, os.WriteFile(first, []byte("first file"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("second"), 0o600))

	out, stderr, err := f.run("", "upload", first, second, "--parent", docs.ID, "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded 'one.txt'")
	assert.Contains(t, out, "Uploaded 'two.txt'")
	assert.Contains(t, stderr, "Uploading [1/2]")

	listing, err := f.svc.List(context.Background(), docs.ID, models.SortName)
	require.NoError(t, err)
	require.Len(t, listing, 2)

	target := filepath.Join(t.TempDir(), "copy.txt")
	out, _, err = f.run("", "download", listing[0].ID, "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Downloaded")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "first file", string(data))
}

func TestUploadMissingFile(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	_, stderr, err := f.run("", "upload", filepath.Join(f.dir, "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, stderr, "missing.txt")
	assert.Equal(t, 0, f.svc.Calls("Upload"))
}

func TestDownloadFromRootUsesName(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	file := f.svc.AddFile("notes.txt", "", []byte("hello"))

	_, _, err := f.run("", "download", file.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(f.dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.signIn()
	docs := f.svc.AddDir("docs", "")
	f.svc.AddFile("report-2023.pdf", docs.ID, nil)
	f.svc.AddFile("notes.txt", "", nil)

	out, _, err := f.run("", "search", "REPORT")
	require.NoError(t, err)
	assert.Contains(t, out, "report-2023.pdf")
	assert.NotContains(t, out, "notes.txt")
}

func TestAvatar(t *testing.T) {
	f := newFixture(t)
	f.signIn()

	image := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(image, []byte("png"), 0o600))

	_, stderr, err := f.run("", "avatar", "clear")
	require.Error(t, err)
	assert.Contains(t, stderr, "no avatar")

	out, _, err := f.run("", "avatar", "set", image)
	require.NoError(t, err)
	assert.NotContains(t, out, "Avatar:  none")

	_, _, err = f.run("", "avatar", "set", image)
	assert.Error(t, err)

	out, _, err = f.run("", "avatar", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Avatar:  none")
}
