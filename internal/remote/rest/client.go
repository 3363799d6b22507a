// Package rest talks to the cloud-disk REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/slmtnm/cloudisk/internal/logging"
	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

// DefaultBaseURL is where the service listens in a local setup
const DefaultBaseURL = "http://localhost:5000/api"

// Config holds client configuration
type Config struct {
	BaseURL string
	// Retries applies to metadata calls only. Zero keeps the
	// one-request-per-action behaviour.
	Retries int
	Token   string
	Logger  zerolog.Logger
	// HTTPClient is the transport for both metadata calls and uploads.
	HTTPClient *http.Client
}

// Client implements remote.Service over HTTP
type Client struct {
	baseURL  string
	api      *http.Client // retrying, for JSON calls
	transfer *http.Client // plain, for streamed uploads
	log      zerolog.Logger

	mu    sync.RWMutex
	token string
}

var _ remote.Service = (*Client)(nil)

// New creates a new REST client
func New(cfg Config) *Client {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = logging.RetryLogger{Logger: cfg.Logger}
	// hand every response back so error bodies can be decoded
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		api:      retryClient.StandardClient(),
		transfer: base,
		log:      cfg.Logger,
		token:    cfg.Token,
	}
}

// SetCredential sets the token for requests. It is sent as is in the
// Authorization header, without a scheme.
func (c *Client) SetCredential(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
}

// do performs a JSON request and decodes the response into out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.applyAuth(req)

	resp, err := c.api.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.decode(resp, method, path, out)
}

func (c *Client) decode(resp *http.Response, method, path string, out interface{}) error {
	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp)
		c.log.Warn().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg(apiErr.Error())
		return apiErr
	}
	c.log.Debug().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg("request done")
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// decodeError reads the {message, field_errors} body of a rejected request.
func decodeError(resp *http.Response) *remote.APIError {
	apiErr := &remote.APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	if json.Unmarshal(data, apiErr) != nil {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	apiErr.Status = resp.StatusCode
	return apiErr
}

// List lists the direct children of parent
func (c *Client) List(ctx context.Context, parent string, order models.SortOrder) ([]models.FileEntry, error) {
	q := url.Values{}
	if parent != "" {
		q.Set("parent", parent)
	}
	if order != models.SortNone {
		q.Set("sort", string(order))
	}
	var entries []models.FileEntry
	if err := c.do(ctx, http.MethodGet, "files", q, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

type createRequest struct {
	Name   string           `json:"name"`
	Parent string           `json:"parent,omitempty"`
	Type   models.EntryType `json:"type"`
}

// Create creates an entry, in practice a directory
func (c *Client) Create(ctx context.Context, name, parent string, typ models.EntryType) (models.FileEntry, error) {
	var entry models.FileEntry
	err := c.do(ctx, http.MethodPost, "files", nil, createRequest{Name: name, Parent: parent, Type: typ}, &entry)
	return entry, err
}

// Delete deletes an entry by id
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	if err := c.do(ctx, http.MethodDelete, "files", url.Values{"id": {id}}, nil, nil); err != nil {
		return "", err
	}
	return id, nil
}

// Search searches the whole tree by name
func (c *Client) Search(ctx context.Context, query string) ([]models.FileEntry, error) {
	var entries []models.FileEntry
	if err := c.do(ctx, http.MethodGet, "files/search", url.Values{"search": {query}}, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Upload streams a multipart upload, reporting bytes of the file part sent
func (c *Client) Upload(ctx context.Context, u remote.Upload) (models.FileEntry, error) {
	fields := map[string]string{}
	if u.Parent != "" {
		fields["parent"] = u.Parent
	}
	var entry models.FileEntry
	body := remote.NewProgressReader(u.Body, u.Size, u.Progress)
	err := c.multipart(ctx, http.MethodPost, "files/upload", u.Name, body, fields, &entry)
	return entry, err
}

// multipart sends a streamed multipart/form-data request with a single file part.
func (c *Client) multipart(ctx context.Context, method, path, filename string, file io.Reader, fields map[string]string, out interface{}) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			for k, v := range fields {
				if err := mw.WriteField(k, v); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.applyAuth(req)

	resp, err := c.transfer.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		c.log.Error().Err(err).Str("path", path).Str("file", filename).Msg("upload failed")
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	return c.decode(resp, method, path, out)
}

// Download writes the raw bytes of a file to w
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/download?"+url.Values{"id": {id}}.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.applyAuth(req)

	resp, err := c.transfer.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, decodeError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read download body: %w", err)
	}
	return n, nil
}

// Register creates an account
func (c *Client) Register(ctx context.Context, creds models.Credentials) (models.AuthResult, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "auth/registration", nil, creds, &raw); err != nil {
		return models.AuthResult{}, err
	}
	return decodeAuth(raw)
}

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.AuthResult, error) {
	var result models.AuthResult
	err := c.do(ctx, http.MethodPost, "auth/login", nil, creds, &result)
	return result, err
}

// Check resolves the current token into a user
func (c *Client) Check(ctx context.Context) (models.AuthResult, error) {
	var result models.AuthResult
	err := c.do(ctx, http.MethodGet, "auth/check", nil, nil, &result)
	return result, err
}

// SetAvatar uploads an avatar image
func (c *Client) SetAvatar(ctx context.Context, name string, r io.Reader) (models.User, error) {
	var user models.User
	err := c.multipart(ctx, http.MethodPost, "files/avatar", name, r, nil, &user)
	return user, err
}

// ClearAvatar removes the avatar
func (c *Client) ClearAvatar(ctx context.Context) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodDelete, "files/avatar", nil, nil, &user)
	return user, err
}

// decodeAuth accepts both {user, token} and a bare user, which is what
// some deployments answer to registration.
func decodeAuth(raw json.RawMessage) (models.AuthResult, error) {
	var result models.AuthResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if result.User.ID != "" || result.User.Email != "" {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result.User); err != nil {
		return result, fmt.Errorf("failed to decode auth response: %w", err)
	}
	return result, nil
}
