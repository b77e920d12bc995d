package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recbridge/backend/internal/models"
)

type fakeZoom struct {
	mu          sync.Mutex
	chunks      [][2]string
	tokenCalls  int
	failChunkAt int
	srv         *httptest.Server
}

func newFakeZoom(t *testing.T) *fakeZoom {
	t.Helper()
	f := &fakeZoom{failChunkAt: -1}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "secret" || r.PostForm.Get("grant_type") != "account_credentials" || r.PostForm.Get("account_id") != "acct" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/users/me/recordings", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		f.mu.Lock()
		idx := len(f.chunks)
		if q.Get("next_page_token") == "" {
			f.chunks = append(f.chunks, [2]string{q.Get("from"), q.Get("to")})
		} else {
			idx--
		}
		fail := f.failChunkAt == idx
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("from") == "2024-01-01" && q.Get("next_page_token") == "":
			w.Write([]byte(`{"next_page_token":"p2","meetings":[
				{"id":111,"topic":"Board Meeting","start_time":"2024-01-05T15:00:00Z","duration":60,
				 "recording_files":[{"id":"f1","file_type":"MP4","file_size":10,"download_url":"x"}]},
				{"id":112,"topic":"No files","start_time":"2024-01-06T15:00:00Z","recording_files":[]}]}`))
		case q.Get("next_page_token") == "p2":
			w.Write([]byte(`{"meetings":[{"id":"113","topic":"","start_time":"2024-01-07T15:00:00Z",
				"recording_files":[{"id":"f3","file_type":"M4A"}]}]}`))
		case q.Get("from") == "2024-03-05":
			w.Write([]byte(`{"meetings":[
				{"id":201,"topic":"Late Previous Evening","start_time":"2024-03-05T03:00:00Z","recording_files":[{"id":"p","file_type":"MP4"}]},
				{"id":202,"topic":"Morning","start_time":"2024-03-05T14:00:00Z","recording_files":[{"id":"m","file_type":"MP4"}]},
				{"id":203,"topic":"Evening","start_time":"2024-03-06T02:00:00Z","recording_files":[{"id":"e","file_type":"MP4"}]},
				{"id":204,"topic":"Next Morning","start_time":"2024-03-06T14:00:00Z","recording_files":[{"id":"n","file_type":"MP4"}]}]}`))
		default:
			w.Write([]byte(`{"meetings":[]}`))
		}
	})
	mux.HandleFunc("/v2/meetings/111/recordings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"recording_files":[{"id":"a","file_type":"M4A"},{"id":"b","file_type":"MP4","download_url":"u"}]}`))
	})
	mux.HandleFunc("/v2/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		w.Write([]byte(`{"users":[{"id":"u1","email":"a@example.org","display_name":"Ann","type":2},{"id":"u2","email":"b@example.org"}]}`))
	})
	mux.HandleFunc("/files/ok", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("video-bytes"))
	})
	mux.HandleFunc("/files/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeZoom) client() *Client {
	return NewClient(Config{
		AccountID:     "acct",
		ClientID:      "cid",
		ClientSecret:  "secret",
		AuthURL:       f.srv.URL + "/oauth/token",
		BaseURL:       f.srv.URL + "/v2",
		RatePerSecond: 1000,
		Burst:         100,
	}, f.srv.Client(), nil)
}

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAccessTokenCached(t *testing.T) {
	f := newFakeZoom(t)
	c := f.client()
	for i := 0; i < 3; i++ {
		tok, err := c.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok", tok)
	}
	assert.Equal(t, 1, f.tokenCalls)
}

func TestAccessTokenNotConfigured(t *testing.T) {
	_, err := NewClient(Config{}, nil, nil).AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestAccessTokenRejected(t *testing.T) {
	f := newFakeZoom(t)
	c := NewClient(Config{AccountID: "acct", ClientID: "cid", ClientSecret: "wrong", AuthURL: f.srv.URL + "/oauth/token"}, f.srv.Client(), nil)
	_, err := c.AccessToken(context.Background())
	assert.Error(t, err)
}

func TestListSessionsChunksAndPages(t *testing.T) {
	f := newFakeZoom(t)
	sessions, err := f.client().ListSessions(context.Background(), "tok", day("2024-01-01"), day("2024-02-15"), "")
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"2024-01-01", "2024-01-31"}, {"2024-02-01", "2024-02-15"}}, f.chunks)
	require.Len(t, sessions, 2)
	assert.Equal(t, "111", sessions[0].ID)
	assert.Equal(t, "Board Meeting", sessions[0].Topic)
	assert.True(t, sessions[0].Files[0].IsVideo())
	assert.Equal(t, "113", sessions[1].ID)
	assert.Equal(t, "Untitled Meeting", sessions[1].Topic)
}

func TestListSessionsChunkFailureIsError(t *testing.T) {
	f := newFakeZoom(t)
	f.failChunkAt = 1
	sessions, err := f.client().ListSessions(context.Background(), "tok", day("2024-01-01"), day("2024-02-15"), "me")
	require.Error(t, err)
	assert.Nil(t, sessions)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestListSessionsSingleDay(t *testing.T) {
	f := newFakeZoom(t)
	_, err := f.client().ListSessions(context.Background(), "tok", day("2024-03-01"), day("2024-03-01"), "")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"2024-03-01", "2024-03-01"}}, f.chunks)
}

func TestListSessionsLocalDayCoversUTCDates(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f := newFakeZoom(t)
	local := time.Date(2024, 3, 5, 0, 0, 0, 0, ny)

	sessions, err := f.client().ListSessions(context.Background(), "tok", local, local, "")
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"2024-03-05", "2024-03-06"}}, f.chunks)
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"202", "203"}, ids)
	assert.Equal(t, 21, sessions[1].StartTime.In(ny).Hour())
}

func TestListFiles(t *testing.T) {
	f := newFakeZoom(t)
	files, err := f.client().ListFiles(context.Background(), "tok", "111")
	require.NoError(t, err)
	require.Len(t, files, 2)
	v, ok := models.FirstVideo(files)
	require.True(t, ok)
	assert.Equal(t, "b", v.ID)
}

func TestListUsers(t *testing.T) {
	f := newFakeZoom(t)
	users, err := f.client().ListUsers(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ann", users[0].DisplayName)
	assert.Equal(t, "b@example.org", users[1].DisplayName)
	assert.Equal(t, 1, users[1].Type)
}

func TestDownload(t *testing.T) {
	f := newFakeZoom(t)
	dir := t.TempDir()
	path, n, err := f.client().Download(context.Background(), "tok",
		models.MediaFile{ID: "f1", FileType: "MP4", DownloadURL: f.srv.URL + "/files/ok"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "zoom_video_f1.mp4"), path)
	assert.Equal(t, int64(len("video-bytes")), n)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(b))
}

func TestDownloadNotFoundLeavesNoFile(t *testing.T) {
	f := newFakeZoom(t)
	dir := t.TempDir()
	_, _, err := f.client().Download(context.Background(), "tok",
		models.MediaFile{ID: "f2", FileType: "MP4", DownloadURL: f.srv.URL + "/files/missing"}, dir)
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestDownloadWithoutURL(t *testing.T) {
	_, _, err := NewClient(Config{}, nil, nil).Download(context.Background(), "tok", models.MediaFile{ID: "x"}, t.TempDir())
	assert.Error(t, err)
}

func TestMeetingIDAcceptsNumberAndString(t *testing.T) {
	var page recordingsPage
	require.NoError(t, json.Unmarshal([]byte(`{"meetings":[{"id":85746065},{"id":"999"}]}`), &page))
	assert.Equal(t, "85746065", page.Meetings[0].ID.String())
	assert.Equal(t, "999", page.Meetings[1].ID.String())
}

func slowDownloadServer(t *testing.T, chunks int, gap time.Duration, stallAfter int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for i := 0; i < chunks; i++ {
			if i == stallAfter {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			time.Sleep(gap)
			w.Write([]byte("chunk"))
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func shortTimeoutClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		RatePerSecond:         1000,
		DownloadHeaderTimeout: 150 * time.Millisecond,
		DownloadIdleTimeout:   150 * time.Millisecond,
	}, srv.Client(), nil)
}

func TestDownloadSlowTransferOutlastsTimeouts(t *testing.T) {
	srv := slowDownloadServer(t, 8, 50*time.Millisecond, -1)
	dir := t.TempDir()
	start := time.Now()
	path, n, err := shortTimeoutClient(srv).Download(context.Background(), "tok",
		models.MediaFile{ID: "slow", FileType: "MP4", DownloadURL: srv.URL}, dir)
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, int64(8*len("chunk")), n)
	assert.FileExists(t, path)
}

func TestDownloadStalledTransferFails(t *testing.T) {
	srv := slowDownloadServer(t, 8, 10*time.Millisecond, 2)
	dir := t.TempDir()
	_, _, err := shortTimeoutClient(srv).Download(context.Background(), "tok",
		models.MediaFile{ID: "stuck", FileType: "MP4", DownloadURL: srv.URL}, dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadStalled)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}
