package session

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
	"github.com/slmtnm/cloudisk/internal/remote/remotetest"
)

type memCreds struct {
	token   string
	loadErr error
	saves   int
}

func (m *memCreds) Load() (string, error) { return m.token, m.loadErr }
func (m *memCreds) Save(token string) error {
	m.token = token
	m.saves++
	return nil
}
func (m *memCreds) Clear() error {
	m.token = ""
	return nil
}

func run(s *Store, cmd tea.Cmd) {
	if cmd != nil {
		s.Update(cmd())
	}
}

func setup(t *testing.T) (*Store, *remotetest.Service, *memCreds) {
	t.Helper()
	svc := remotetest.New()
	creds := &memCreds{}
	return New(context.Background(), svc, creds, zerolog.Nop()), svc, creds
}

func signIn(t *testing.T, s *Store, svc *remotetest.Service) {
	t.Helper()
	svc.AddAccount("me@example.com", "secret")
	run(s, s.Login(models.Credentials{Email: "me@example.com", Password: "secret"}))
	require.True(t, s.IsAuth())
}

func TestValidate(t *testing.T) {
	var verr *ValidationError

	err := Validate(models.Credentials{Email: "not-an-email", Password: "secret"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	err = Validate(models.Credentials{Email: "Me <me@example.com>", Password: "secret"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	err = Validate(models.Credentials{Email: "me@example.com", Password: "1234"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	assert.NoError(t, Validate(models.Credentials{Email: "me@example.com", Password: "12345"}))
}

func TestCheckSessionWithoutToken(t *testing.T) {
	s, svc, _ := setup(t)

	assert.Nil(t, s.CheckSession())
	assert.False(t, s.IsAuth())
	assert.NoError(t, s.Err())
	assert.Equal(t, 0, svc.Calls("Check"))
}

func TestCheckSessionAuthenticated(t *testing.T) {
	s, svc, creds := setup(t)
	svc.AddAccount("me@example.com", "secret")
	res, err := svc.Login(context.Background(), models.Credentials{Email: "me@example.com", Password: "secret"})
	require.NoError(t, err)
	creds.token = res.Token

	cmd := s.CheckSession()
	require.NotNil(t, cmd)
	assert.True(t, s.Pending())
	run(s, cmd)

	assert.True(t, s.IsAuth())
	assert.False(t, s.Pending())
	assert.Equal(t, "me@example.com", s.User().Email)
	// the reissued token replaces the stored one
	assert.NotEqual(t, res.Token, s.Token())
	assert.Equal(t, s.Token(), creds.token)
	assert.Equal(t, s.Token(), svc.Token())
}

func TestCheckSessionRejectedClearsToken(t *testing.T) {
	s, svc, creds := setup(t)
	creds.token = "stale"

	run(s, s.CheckSession())
	assert.False(t, s.IsAuth())
	assert.NoError(t, s.Err())
	assert.Empty(t, creds.token)
	assert.Empty(t, svc.Token())
}

func TestCheckSessionFault(t *testing.T) {
	s, svc, creds := setup(t)
	creds.token = "token"
	svc.FailNext("Check", errors.New("dial tcp: connection refused"))

	run(s, s.CheckSession())
	assert.False(t, s.IsAuth())
	require.Error(t, s.Err())
	assert.True(t, s.Fault())
	// kept for the next attempt
	assert.Equal(t, "token", creds.token)
}

func TestCheckSessionExpiredJWT(t *testing.T) {
	s, svc, creds := setup(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("key"))
	require.NoError(t, err)
	creds.token = token

	assert.Nil(t, s.CheckSession())
	assert.False(t, s.IsAuth())
	assert.Empty(t, creds.token)
	assert.Equal(t, 0, svc.Calls("Check"))
}

func TestCheckSessionLiveJWT(t *testing.T) {
	s, _, creds := setup(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("key"))
	require.NoError(t, err)
	creds.token = token

	assert.NotNil(t, s.CheckSession())
}

func TestCheckSessionLoadError(t *testing.T) {
	s, _, creds := setup(t)
	creds.loadErr = os.ErrPermission

	assert.Nil(t, s.CheckSession())
	assert.ErrorIs(t, s.Err(), os.ErrPermission)
}

func TestLoginValidationNeverReachesNetwork(t *testing.T) {
	s, svc, _ := setup(t)

	assert.Nil(t, s.Login(models.Credentials{Email: "bad", Password: "secret"}))
	var verr *ValidationError
	assert.ErrorAs(t, s.Err(), &verr)

	assert.Nil(t, s.Register(models.Credentials{Email: "me@example.com", Password: "123"}))
	assert.Equal(t, 0, svc.Calls("Login"))
	assert.Equal(t, 0, svc.Calls("Register"))
}

func TestLoginStoresToken(t *testing.T) {
	s, svc, creds := setup(t)
	signIn(t, s, svc)

	assert.NotEmpty(t, s.Token())
	assert.Equal(t, s.Token(), creds.token)
	assert.Equal(t, s.Token(), svc.Token())
	assert.Equal(t, 1, creds.saves)
}

func TestLoginRejected(t *testing.T) {
	s, svc, creds := setup(t)
	svc.AddAccount("me@example.com", "secret")

	run(s, s.Login(models.Credentials{Email: "me@example.com", Password: "wrong"}))
	assert.False(t, s.IsAuth())
	assert.True(t, remote.IsRejected(s.Err()))
	assert.False(t, s.Fault())
	assert.Empty(t, creds.token)
}

func TestRegister(t *testing.T) {
	s, svc, _ := setup(t)

	run(s, s.Register(models.Credentials{Email: " new@example.com ", Password: "secret"}))
	assert.True(t, s.IsAuth())
	assert.Equal(t, "new@example.com", s.User().Email)

	other, _, _ := setup(t)
	other.accounts = svc
	run(other, other.Register(models.Credentials{Email: "new@example.com", Password: "secret"}))
	apiErr, ok := remote.AsAPIError(other.Err())
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestLogoutRequiresConfirmation(t *testing.T) {
	s, svc, creds := setup(t)
	signIn(t, s, svc)

	assert.ErrorIs(t, s.Logout(false), ErrNotConfirmed)
	assert.True(t, s.IsAuth())

	require.NoError(t, s.Logout(true))
	assert.False(t, s.IsAuth())
	assert.Empty(t, s.Token())
	assert.Empty(t, creds.token)
	assert.Empty(t, svc.Token())
	assert.Equal(t, models.User{}, s.User())
}

func TestAvatarGating(t *testing.T) {
	s, svc, _ := setup(t)
	assert.Nil(t, s.SetAvatar("x.png"))
	assert.ErrorIs(t, s.Err(), ErrNotAuthenticated)

	signIn(t, s, svc)
	assert.True(t, s.CanSetAvatar())
	assert.False(t, s.CanClearAvatar())

	assert.Nil(t, s.ClearAvatar())
	assert.ErrorIs(t, s.Err(), ErrNoAvatar)

	path := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	run(s, s.SetAvatar(path))
	require.NoError(t, s.Err())
	assert.True(t, s.User().HasAvatar())
	assert.False(t, s.CanSetAvatar())

	assert.Nil(t, s.SetAvatar(path))
	assert.ErrorIs(t, s.Err(), ErrAvatarPresent)

	run(s, s.ClearAvatar())
	require.NoError(t, s.Err())
	assert.False(t, s.User().HasAvatar())
}

func TestSetAvatarMissingFile(t *testing.T) {
	s, svc, _ := setup(t)
	signIn(t, s, svc)

	run(s, s.SetAvatar(filepath.Join(t.TempDir(), "missing.png")))
	assert.ErrorIs(t, s.Err(), os.ErrNotExist)
	assert.Equal(t, 0, svc.Calls("SetAvatar"))
}

// keyedAccounts answers Check without any token, as a bucket reached with
// static keys does
type keyedAccounts struct {
	remote.Accounts
	err error
}

func (k keyedAccounts) Check(context.Context) (models.AuthResult, error) {
	if k.err != nil {
		return models.AuthResult{}, k.err
	}
	return models.AuthResult{User: models.User{ID: "bucket", Email: "s3://bucket"}}, nil
}

func TestConnectWithoutToken(t *testing.T) {
	creds := &memCreds{}
	s := New(context.Background(), keyedAccounts{}, creds, zerolog.Nop())

	cmd := s.Connect()
	assert.True(t, s.Pending())
	run(s, cmd)
	assert.False(t, s.Pending())
	assert.True(t, s.IsAuth())
	assert.Equal(t, "s3://bucket", s.User().Email)
	assert.Empty(t, s.Token())
	assert.Equal(t, 0, creds.saves)
}

func TestConnectFault(t *testing.T) {
	s := New(context.Background(), keyedAccounts{err: errors.New("dial tcp: no such host")}, &memCreds{}, zerolog.Nop())

	run(s, s.Connect())
	assert.False(t, s.IsAuth())
	assert.True(t, s.Fault())
}
