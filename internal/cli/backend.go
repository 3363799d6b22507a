package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/slmtnm/cloudisk/internal/config"
	"github.com/slmtnm/cloudisk/internal/remote"
	"github.com/slmtnm/cloudisk/internal/remote/rest"
	"github.com/slmtnm/cloudisk/internal/remote/s3store"
	"github.com/slmtnm/cloudisk/internal/session"
)

// backend is a configured service and the way its session is kept
type backend struct {
	svc   remote.Service
	creds session.CredentialStore
	// tokenless backends authenticate with static keys
	tokenless bool
	title     string
}

// noCreds is the credential store of tokenless backends
type noCreds struct{}

func (noCreds) Load() (string, error) { return "", nil }
func (noCreds) Save(string) error     { return nil }
func (noCreds) Clear() error          { return nil }

func openBackend(ctx context.Context, a *app) (*backend, error) {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendS3:
		store, err := s3store.New(ctx, s3store.Config{
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Endpoint:  cfg.S3.EndpointURL(),
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
		}, a.log)
		if err != nil {
			return nil, fmt.Errorf("error creating S3 client: %w", err)
		}
		return &backend{
			svc:       store,
			creds:     noCreds{},
			tokenless: true,
			title:     "Bucket: " + cfg.S3.Bucket,
		}, nil

	default:
		path, err := a.credentialsPath()
		if err != nil {
			return nil, err
		}
		tokens := config.NewTokenStore(path, cfg.Server)
		return &backend{
			svc: rest.New(rest.Config{
				BaseURL: cfg.Server,
				Retries: cfg.Retries,
				Logger:  a.log,
			}),
			creds: tokens,
			title: "cloudisk",
		}, nil
	}
}

// settle runs cmd and hands its result to update until nothing is left to
// do. It is the synchronous counterpart of the bubbletea loop.
func settle(cmd tea.Cmd, update func(tea.Msg) tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		cmd = update(msg)
	}
}

// signedIn resumes the stored session and returns it
func (a *app) signedIn(ctx context.Context, b *backend) (*session.Store, error) {
	s := session.New(ctx, b.svc, b.creds, a.log)
	var cmd tea.Cmd
	if b.tokenless {
		cmd = s.Connect()
	} else {
		cmd = s.CheckSession()
	}
	settle(cmd, s.Update)

	if s.IsAuth() {
		return s, nil
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("not signed in, run 'cloudisk login' first")
}
