// Package remotetest provides an in-memory remote.Service for tests.
package remotetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

type account struct {
	password string
	user     models.User
}

// Service keeps a file tree and a set of accounts in memory. It is safe for
// use from the goroutines commands run on.
type Service struct {
	mu       sync.Mutex
	entries  map[string]models.FileEntry
	order    []string
	content  map[string][]byte
	accounts map[string]*account
	tokens   map[string]string // token -> email
	token    string
	seq      int
	clock    time.Time
	failures map[string]error
	calls    map[string]int
}

var _ remote.Service = (*Service)(nil)

// New returns an empty service
func New() *Service {
	return &Service{
		entries:  map[string]models.FileEntry{},
		content:  map[string][]byte{},
		accounts: map[string]*account{},
		tokens:   map[string]string{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

// FailNext makes the next call of op ("List", "Create", "Login", ...) return err
func (s *Service) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Calls returns how many times op was invoked
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Token returns the credential last passed to SetCredential
func (s *Service) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// begin records the call and returns a queued failure. Callers hold s.mu.
func (s *Service) begin(op string) error {
	s.calls[op]++
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

func (s *Service) add(name, parent string, typ models.EntryType, data []byte) models.FileEntry {
	s.seq++
	s.clock = s.clock.Add(time.Minute)
	e := models.FileEntry{
		ID:     fmt.Sprintf("id-%d", s.seq),
		Name:   name,
		Type:   typ,
		Parent: parent,
		Date:   s.clock,
	}
	if typ == models.TypeFile {
		e.Size = int64(len(data))
		s.content[e.ID] = data
	}
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	return e
}

// AddDir seeds a directory
func (s *Service) AddDir(name, parent string) models.FileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(name, parent, models.TypeDir, nil)
}

// AddFile seeds a file with the given content
func (s *Service) AddFile(name, parent string, data []byte) models.FileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(name, parent, models.TypeFile, data)
}

// Entry looks an entry up by id
func (s *Service) Entry(id string) (models.FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *Service) children(parent string) []models.FileEntry {
	var out []models.FileEntry
	for _, id := range s.order {
		if e, ok := s.entries[id]; ok && e.Parent == parent {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) dirExists(id string) bool {
	if id == "" {
		return true
	}
	e, ok := s.entries[id]
	return ok && e.IsDir()
}

func (s *Service) List(_ context.Context, parent string, order models.SortOrder) ([]models.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("List"); err != nil {
		return nil, err
	}
	if !s.dirExists(parent) {
		return nil, remote.Rejected(http.StatusNotFound, "directory not found")
	}
	entries := s.children(parent)
	models.SortEntries(entries, order)
	return entries, nil
}

func (s *Service) Create(_ context.Context, name, parent string, typ models.EntryType) (models.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Create"); err != nil {
		return models.FileEntry{}, err
	}
	if !s.dirExists(parent) {
		return models.FileEntry{}, remote.Rejected(http.StatusNotFound, "parent directory not found")
	}
	for _, e := range s.children(parent) {
		if e.Name == name {
			return models.FileEntry{}, remote.Rejected(http.StatusBadRequest, "file already exists")
		}
	}
	return s.add(name, parent, typ, nil), nil
}

func (s *Service) Delete(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Delete"); err != nil {
		return "", err
	}
	if _, ok := s.entries[id]; !ok {
		return "", remote.Rejected(http.StatusNotFound, "file not found")
	}
	s.remove(id)
	return id, nil
}

func (s *Service) remove(id string) {
	for _, child := range s.children(id) {
		s.remove(child.ID)
	}
	delete(s.entries, id)
	delete(s.content, id)
}

// Upload reads the body in small chunks so progress is reported more than once
func (s *Service) Upload(ctx context.Context, u remote.Upload) (models.FileEntry, error) {
	s.mu.Lock()
	err := s.begin("Upload")
	ok := s.dirExists(u.Parent)
	s.mu.Unlock()
	if err != nil {
		return models.FileEntry{}, err
	}
	if !ok {
		return models.FileEntry{}, remote.Rejected(http.StatusNotFound, "parent directory not found")
	}

	var buf bytes.Buffer
	body := remote.NewProgressReader(u.Body, u.Size, u.Progress)
	chunk := make([]byte, 4)
	for {
		if err := ctx.Err(); err != nil {
			return models.FileEntry{}, err
		}
		n, err := body.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.FileEntry{}, fmt.Errorf("failed to read upload: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(path.Base(u.Name), u.Parent, models.TypeFile, buf.Bytes()), nil
}

func (s *Service) Download(_ context.Context, id string, w io.Writer) (int64, error) {
	s.mu.Lock()
	err := s.begin("Download")
	data, ok := s.content[id]
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, remote.Rejected(http.StatusNotFound, "file not found")
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (s *Service) Search(_ context.Context, query string) ([]models.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Search"); err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []models.FileEntry
	for _, id := range s.order {
		if e, ok := s.entries[id]; ok && strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	return out, nil
}

// AddAccount seeds an account and returns its user
func (s *Service) AddAccount(email, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccount(email, password)
}

func (s *Service) addAccount(email, password string) models.User {
	s.seq++
	user := models.User{ID: fmt.Sprintf("user-%d", s.seq), Email: email, DiskSpace: 10 << 30}
	s.accounts[email] = &account{password: password, user: user}
	return user
}

func (s *Service) issue(email string) string {
	s.seq++
	token := fmt.Sprintf("token-%d", s.seq)
	s.tokens[token] = email
	return token
}

func (s *Service) Register(_ context.Context, creds models.Credentials) (models.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Register"); err != nil {
		return models.AuthResult{}, err
	}
	if _, ok := s.accounts[creds.Email]; ok {
		return models.AuthResult{}, remote.Rejected(http.StatusBadRequest, fmt.Sprintf("User with email %s already exist", creds.Email))
	}
	user := s.addAccount(creds.Email, creds.Password)
	return models.AuthResult{User: user, Token: s.issue(creds.Email)}, nil
}

func (s *Service) Login(_ context.Context, creds models.Credentials) (models.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Login"); err != nil {
		return models.AuthResult{}, err
	}
	acc, ok := s.accounts[creds.Email]
	if !ok {
		return models.AuthResult{}, remote.Rejected(http.StatusNotFound, "User not found")
	}
	if acc.password != creds.Password {
		return models.AuthResult{}, remote.Rejected(http.StatusBadRequest, "Invalid password")
	}
	return models.AuthResult{User: acc.user, Token: s.issue(creds.Email)}, nil
}

// current resolves the credential. Callers hold s.mu.
func (s *Service) current() (*account, error) {
	email, ok := s.tokens[s.token]
	if !ok {
		return nil, remote.Rejected(http.StatusUnauthorized, "Auth error")
	}
	return s.accounts[email], nil
}

func (s *Service) Check(context.Context) (models.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Check"); err != nil {
		return models.AuthResult{}, err
	}
	acc, err := s.current()
	if err != nil {
		return models.AuthResult{}, err
	}
	return models.AuthResult{User: acc.user, Token: s.issue(acc.user.Email)}, nil
}

func (s *Service) SetAvatar(_ context.Context, name string, r io.Reader) (models.User, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("SetAvatar"); err != nil {
		return models.User{}, err
	}
	acc, err := s.current()
	if err != nil {
		return models.User{}, err
	}
	avatar := acc.user.ID + "-" + path.Base(name)
	acc.user.Avatar = &avatar
	return acc.user, nil
}

func (s *Service) ClearAvatar(context.Context) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("ClearAvatar"); err != nil {
		return models.User{}, err
	}
	acc, err := s.current()
	if err != nil {
		return models.User{}, err
	}
	acc.user.Avatar = nil
	return acc.user, nil
}

func (s *Service) SetCredential(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}
