package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/remote"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api", Logger: zerolog.Nop()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestListSendsParentSortAndToken(t *testing.T) {
	var gotQuery, gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"_id": "a1", "name": "Photos", "type": "dir", "parent": "root1", "date": "2024-01-02T10:00:00Z"},
			{"_id": "b2", "name": "cv.pdf", "type": "file", "parent": "root1", "size": 2048, "date": "2024-01-03T10:00:00Z"},
		})
	}))
	c.SetCredential("tok123")

	entries, err := c.List(context.Background(), "root1", models.SortDate)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a1", entries[0].ID)
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, int64(2048), entries[1].Size)
	assert.Equal(t, "parent=root1&sort=date", gotQuery)
	assert.Equal(t, "tok123", gotAuth)
}

func TestListRootOmitsParams(t *testing.T) {
	var gotQuery, gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []interface{}{})
	}))

	entries, err := c.List(context.Background(), "", models.SortNone)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, gotQuery)
	assert.Empty(t, gotAuth)
}

func TestCreateDirectory(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"name": "Photos", "parent": "p1", "type": "dir"}, body)
		writeJSON(w, http.StatusOK, map[string]interface{}{"_id": "new", "name": "Photos", "type": "dir", "parent": "p1"})
	}))

	entry, err := c.Create(context.Background(), "Photos", "p1", models.TypeDir)
	require.NoError(t, err)
	assert.Equal(t, "new", entry.ID)
	assert.Equal(t, models.TypeDir, entry.Type)
}

func TestDeleteNotFoundIsRejected(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "x1", r.URL.Query().Get("id"))
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "file not found"})
	}))

	_, err := c.Delete(context.Background(), "x1")
	require.Error(t, err)
	assert.True(t, remote.IsNotFound(err))
	assert.False(t, remote.IsFault(err))
	assert.Equal(t, "file not found", err.Error())
}

func TestServerErrorIsNotRetriedByDefault(t *testing.T) {
	var calls int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server error"})
	}))

	_, err := c.Search(context.Background(), "report")
	require.Error(t, err)
	assert.True(t, remote.IsRejected(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetriesWhenConfigured(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "report", r.URL.Query().Get("search"))
		writeJSON(w, http.StatusOK, []map[string]string{{"_id": "r", "name": "report.txt", "type": "file"}})
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, Retries: 3, Logger: zerolog.Nop()})
	entries, err := c.Search(context.Background(), "report")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNetworkFailureIsFault(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(Config{BaseURL: url, Logger: zerolog.Nop()})
	_, err := c.List(context.Background(), "", models.SortNone)
	require.Error(t, err)
	assert.True(t, remote.IsFault(err))
}

func TestUploadStreamsMultipartWithProgress(t *testing.T) {
	content := strings.Repeat("x", 64*1024)
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/upload", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "dir1", r.FormValue("parent"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "big.bin", hdr.Filename)
		assert.Equal(t, len(content), len(data))
		writeJSON(w, http.StatusOK, map[string]interface{}{"_id": "f1", "name": "big.bin", "type": "file", "parent": "dir1", "size": len(data)})
	}))
	c.SetCredential("tok")

	var mu sync.Mutex
	var last [2]int64
	entry, err := c.Upload(context.Background(), remote.Upload{
		Name:   "big.bin",
		Size:   int64(len(content)),
		Body:   strings.NewReader(content),
		Parent: "dir1",
		Progress: func(sent, total int64) {
			mu.Lock()
			last = [2]int64{sent, total}
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "f1", entry.ID)
	mu.Lock()
	assert.Equal(t, [2]int64{int64(len(content)), int64(len(content))}, last)
	mu.Unlock()
}

func TestDownload(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/download", r.URL.Path)
		if r.URL.Query().Get("id") != "f1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Download error"})
			return
		}
		io.WriteString(w, "hello")
	}))

	var sb strings.Builder
	n, err := c.Download(context.Background(), "f1", &sb)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", sb.String())

	_, err = c.Download(context.Background(), "nope", io.Discard)
	assert.True(t, remote.IsNotFound(err))
}

func TestLoginAndCheck(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var creds models.Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			if creds.Password != "secret" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid password"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"token": "jwt-token",
				"user":  map[string]interface{}{"_id": "u1", "email": creds.Email, "diskSpace": 1 << 30, "userSpace": 0},
			})
		case "/api/auth/check":
			if r.Header.Get("Authorization") != "jwt-token" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Auth error"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"token": "jwt-token-2",
				"user":  map[string]interface{}{"_id": "u1", "email": "a@b.io", "diskSpace": 1 << 30, "userSpace": 5 << 20},
			})
		}
	}))

	_, err := c.Login(context.Background(), models.Credentials{Email: "a@b.io", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, remote.IsRejected(err))

	res, err := c.Login(context.Background(), models.Credentials{Email: "a@b.io", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", res.Token)
	assert.Equal(t, int64(1<<30), res.User.DiskSpace)

	_, err = c.Check(context.Background())
	assert.True(t, remote.IsUnauthorized(err))

	c.SetCredential(res.Token)
	res, err = c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt-token-2", res.Token)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, int64(5<<20), res.User.UsedSpace)
}

func TestRegisterAcceptsBareUser(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"_id": "u9", "email": "new@b.io", "diskSpace": 100})
	}))

	res, err := c.Register(context.Background(), models.Credentials{Email: "new@b.io", Password: "12345"})
	require.NoError(t, err)
	assert.Equal(t, "u9", res.User.ID)
	assert.Empty(t, res.Token)
}

func TestAvatarRoundTrip(t *testing.T) {
	avatar := "avatar-1.jpg"
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/avatar", r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			_, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			assert.Equal(t, "me.jpg", hdr.Filename)
			writeJSON(w, http.StatusOK, map[string]interface{}{"_id": "u1", "avatar": avatar})
		case http.MethodDelete:
			writeJSON(w, http.StatusOK, map[string]interface{}{"_id": "u1", "avatar": nil})
		}
	}))

	user, err := c.SetAvatar(context.Background(), "me.jpg", strings.NewReader("jpegdata"))
	require.NoError(t, err)
	assert.True(t, user.HasAvatar())

	user, err = c.ClearAvatar(context.Background())
	require.NoError(t, err)
	assert.False(t, user.HasAvatar())
}

func TestContextCancelled(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, http.StatusOK, []interface{}{})
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.List(ctx, "", models.SortNone)
	require.Error(t, err)
	assert.True(t, remote.IsFault(err))
}
