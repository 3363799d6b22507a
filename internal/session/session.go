// Package session keeps the authentication state, the signed-in user and the
// lifecycle of the credential token.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

// MinPasswordLength is the shortest password accepted for submission
const MinPasswordLength = 5

var (
	ErrNotConfirmed     = errors.New("logout must be confirmed")
	ErrNotAuthenticated = errors.New("not signed in")
	ErrAvatarPresent    = errors.New("an avatar is already set, remove it first")
	ErrNoAvatar         = errors.New("no avatar to remove")
)

// ValidationError is a problem with user input found before submission
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks credentials before they are sent
func Validate(creds models.Credentials) error {
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "incorrect email"}
	}
	if len(creds.Password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

// CredentialStore persists the token between runs
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type op int

const (
	opCheck op = iota
	opLogin
	opRegister
)

func (o op) String() string {
	switch o {
	case opLogin:
		return "login"
	case opRegister:
		return "register"
	}
	return "check"
}

// Messages for async operations
type AuthMsg struct {
	op     op
	result models.AuthResult
	err    error
}

// Err is the outcome of the request
func (m AuthMsg) Err() error { return m.err }

type ProfileMsg struct {
	User models.User
	Err  error
}

// Store is the session state. It is the only writer of the credential used
// by the remote service.
type Store struct {
	ctx      context.Context
	accounts remote.Accounts
	creds    CredentialStore
	log      zerolog.Logger
	now      func() time.Time

	user    models.User
	token   string
	isAuth  bool
	pending bool
	err     error
}

// New creates a signed-out store
func New(ctx context.Context, accounts remote.Accounts, creds CredentialStore, logger zerolog.Logger) *Store {
	return &Store{
		ctx:      ctx,
		accounts: accounts,
		creds:    creds,
		log:      logger.With().Str("component", "session").Logger(),
		now:      time.Now,
	}
}

func (s *Store) IsAuth() bool { return s.isAuth }
func (s *Store) User() models.User { return s.user }
func (s *Store) Token() string { return s.token }
func (s *Store) Pending() bool { return s.pending }
func (s *Store) Err() error { return s.err }
func (s *Store) Fault() bool { return remote.IsFault(s.err) }
func (s *Store) ClearErr() { s.err = nil }

// CanSetAvatar reports whether adding an avatar is allowed now
func (s *Store) CanSetAvatar() bool { return s.isAuth && !s.user.HasAvatar() }

// CanClearAvatar reports whether removing the avatar is allowed now
func (s *Store) CanClearAvatar() bool { return s.isAuth && s.user.HasAvatar() }

// expired reports whether token is a JWT whose exp has passed. Tokens that
// cannot be read this way are left for the service to judge.
func expired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}

// CheckSession resolves the stored token at startup. It returns nil when
// there is nothing to check.
func (s *Store) CheckSession() tea.Cmd {
	token, err := s.creds.Load()
	if err != nil {
		s.err = fmt.Errorf("failed to read credentials: %w", err)
		s.log.Error().Err(err).Msg("credential store unreadable")
		return nil
	}
	if token == "" {
		return nil
	}
	if expired(token, s.now()) {
		s.log.Info().Msg("stored token expired")
		if err := s.forget(); err != nil {
			s.err = err
		}
		return nil
	}

	s.token = token
	s.accounts.SetCredential(token)
	return s.Connect()
}

// Connect asks the service who the current credential belongs to. Backends
// reached with static keys are checked this way without a stored token.
func (s *Store) Connect() tea.Cmd {
	s.pending = true
	return func() tea.Msg {
		res, err := s.accounts.Check(s.ctx)
		return AuthMsg{op: opCheck, result: res, err: err}
	}
}

// Login exchanges credentials for a session
func (s *Store) Login(creds models.Credentials) tea.Cmd {
	return s.authenticate(opLogin, creds)
}

// Register creates an account and signs in
func (s *Store) Register(creds models.Credentials) tea.Cmd {
	return s.authenticate(opRegister, creds)
}

func (s *Store) authenticate(o op, creds models.Credentials) tea.Cmd {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := Validate(creds); err != nil {
		s.err = err
		return nil
	}
	s.err = nil
	s.pending = true
	return func() tea.Msg {
		var (
			res models.AuthResult
			err error
		)
		if o == opRegister {
			res, err = s.accounts.Register(s.ctx, creds)
		} else {
			res, err = s.accounts.Login(s.ctx, creds)
		}
		return AuthMsg{op: o, result: res, err: err}
	}
}

// Logout drops the session locally. The token is not revoked on the service.
func (s *Store) Logout(confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	s.log.Info().Str("user", s.user.Email).Msg("logging out")
	return s.forget()
}

func (s *Store) forget() error {
	s.token = ""
	s.user = models.User{}
	s.isAuth = false
	s.accounts.SetCredential("")
	if err := s.creds.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (s *Store) adopt(token string) {
	if token == "" || token == s.token {
		return
	}
	s.token = token
	s.accounts.SetCredential(token)
	if err := s.creds.Save(token); err != nil {
		s.log.Error().Err(err).Msg("failed to persist token")
		s.err = fmt.Errorf("failed to save credentials: %w", err)
	}
}

// SetAvatar uploads the image at path. Only allowed while no avatar is set.
func (s *Store) SetAvatar(path string) tea.Cmd {
	if !s.isAuth {
		s.err = ErrNotAuthenticated
		return nil
	}
	if s.user.HasAvatar() {
		s.err = ErrAvatarPresent
		return nil
	}
	s.pending = true
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return ProfileMsg{Err: fmt.Errorf("failed to open '%s': %w", path, err)}
		}
		defer f.Close()
		user, err := s.accounts.SetAvatar(s.ctx, filepath.Base(path), f)
		return ProfileMsg{User: user, Err: err}
	}
}

// ClearAvatar removes the avatar. Only allowed while one is set.
func (s *Store) ClearAvatar() tea.Cmd {
	if !s.isAuth {
		s.err = ErrNotAuthenticated
		return nil
	}
	if !s.user.HasAvatar() {
		s.err = ErrNoAvatar
		return nil
	}
	s.pending = true
	return func() tea.Msg {
		user, err := s.accounts.ClearAvatar(s.ctx)
		return ProfileMsg{User: user, Err: err}
	}
}

// Update merges the result of a command issued by the store
func (s *Store) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case AuthMsg:
		s.pending = false
		s.onAuth(msg)

	case ProfileMsg:
		s.pending = false
		if msg.Err != nil {
			s.fail("avatar", msg.Err)
			return nil
		}
		s.user = msg.User
		s.err = nil
	}
	return nil
}

func (s *Store) onAuth(msg AuthMsg) {
	if msg.err != nil {
		if msg.op == opCheck {
			s.isAuth = false
			if remote.IsRejected(msg.err) {
				// a stale token is not something to report
				s.log.Info().Err(msg.err).Msg("stored session rejected")
				if err := s.forget(); err != nil {
					s.log.Error().Err(err).Msg("failed to clear credentials")
				}
				return
			}
		}
		s.fail(msg.op.String(), msg.err)
		return
	}

	s.err = nil
	s.user = msg.result.User
	s.isAuth = true
	s.adopt(msg.result.Token)
	s.log.Info().Str("user", s.user.Email).Stringer("via", msg.op).Msg("signed in")
}

func (s *Store) fail(op string, err error) {
	s.err = err
	if remote.IsFault(err) {
		s.log.Error().Err(err).Str("op", op).Msg("request failed")
		return
	}
	s.log.Warn().Err(err).Str("op", op).Msg("request rejected")
}
