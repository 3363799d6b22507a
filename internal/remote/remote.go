// Package remote defines the contract between the client components and the
// storage backends (the REST API or an S3 bucket).
package remote

import (
	"context"
	"io"

	"github.com/slmtnm/cloudisk/internal/models"
)

// ProgressFunc receives transfer progress. total is -1 when unknown.
type ProgressFunc func(sent, total int64)

// Upload describes a single file transfer to the service
type Upload struct {
	Name     string
	Size     int64
	Body     io.Reader
	Parent   string
	Progress ProgressFunc
}

// Directory is the remote file tree
type Directory interface {
	// List returns the direct children of parent ("" is the root).
	List(ctx context.Context, parent string, order models.SortOrder) ([]models.FileEntry, error)
	Create(ctx context.Context, name, parent string, typ models.EntryType) (models.FileEntry, error)
	// Delete removes the entry and returns its id. Directory contents are
	// removed by the service.
	Delete(ctx context.Context, id string) (string, error)
	Upload(ctx context.Context, u Upload) (models.FileEntry, error)
	Download(ctx context.Context, id string, w io.Writer) (int64, error)
	// Search matches names anywhere in the tree.
	Search(ctx context.Context, query string) ([]models.FileEntry, error)
}

// Accounts is the authentication and profile side of the service
type Accounts interface {
	Register(ctx context.Context, creds models.Credentials) (models.AuthResult, error)
	Login(ctx context.Context, creds models.Credentials) (models.AuthResult, error)
	// Check resolves the current credential. The result token may be empty
	// when the service does not reissue one.
	Check(ctx context.Context) (models.AuthResult, error)
	SetAvatar(ctx context.Context, name string, r io.Reader) (models.User, error)
	ClearAvatar(ctx context.Context) (models.User, error)
	// SetCredential sets the token sent with every subsequent request.
	SetCredential(token string)
}

// Service is a backend that provides both halves
type Service interface {
	Directory
	Accounts
}

// ProgressReader counts bytes read through it and reports them to fn.
type ProgressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    ProgressFunc
}

// NewProgressReader wraps r. A nil fn disables reporting. The result is an
// io.ReadSeeker when r is one; seeking resets the count to the new offset.
func NewProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	p := &ProgressReader{r: r, total: total, fn: fn}
	if s, ok := r.(io.Seeker); ok {
		return &progressReadSeeker{ProgressReader: p, s: s}
	}
	return p
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

type progressReadSeeker struct {
	*ProgressReader
	s io.Seeker
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.s.Seek(offset, whence)
	if err == nil {
		p.sent = pos
	}
	return pos, err
}
