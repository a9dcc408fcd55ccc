package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelURL(t *testing.T) {
	ref, err := ParseChannelURL("https://discord.com/channels/111/222")
	require.NoError(t, err)
	assert.Equal(t, ChannelRef{GuildID: "111", ChannelID: "222"}, ref)
	assert.Equal(t, "222", ref.Target())

	ref, err = ParseChannelURL("https://discord.com/channels/111/222/333")
	require.NoError(t, err)
	assert.Equal(t, "333", ref.ThreadID)
	assert.Equal(t, "333", ref.Target())

	_, err = ParseChannelURL("https://example.com/nope")
	require.Error(t, err)
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		Token:     "secret",
		TokenType: "bot",
		BaseURL:   srv.URL,
		RetryMax:  2,
	}
}

func TestFetchHistoryPaginates(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Query().Get("before"))
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))

		msgs := []Message{}
		switch r.URL.Query().Get("before") {
		case "":
			for i := 0; i < 100; i++ {
				msgs = append(msgs, Message{ID: fmt.Sprintf("a%03d", i)})
			}
		case "a099":
			msgs = append(msgs, Message{ID: "b000"})
		}
		require.NoError(t, json.NewEncoder(w).Encode(msgs))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	msgs, err := c.FetchHistory(context.Background(), "222", 150)
	require.NoError(t, err)
	assert.Len(t, msgs, 101)
	// Pages are cursored on the last id of the previous page.
	require.Len(t, calls, 3)
	assert.Equal(t, "a099", calls[1])
	assert.Equal(t, "b000", calls[2])
}

func TestFetchHistoryStopsAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "40", r.URL.Query().Get("limit"))
		var msgs []Message
		for i := 0; i < 40; i++ {
			msgs = append(msgs, Message{ID: fmt.Sprint(i)})
		}
		require.NoError(t, json.NewEncoder(w).Encode(msgs))
	}))
	defer srv.Close()

	msgs, err := newTestClient(srv).FetchHistory(context.Background(), "222", 40)
	require.NoError(t, err)
	assert.Len(t, msgs, 40)
}

func TestSendFilesMultipart(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "clip_part1.mp4")
	p2 := filepath.Join(dir, "clip_part1.gif")
	require.NoError(t, os.WriteFile(p1, []byte("video"), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte("gif"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f1 := r.MultipartForm.File["files[0]"]
		require.Len(t, f1, 1)
		assert.Equal(t, "clip_part1.mp4", f1[0].Filename)

		f2 := r.MultipartForm.File["files[1]"]
		require.Len(t, f2, 1)
		assert.Equal(t, "clip_part1.gif", f2[0].Filename)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := newTestClient(srv).SendFiles(context.Background(), "222", []string{p1, p2}, "")
	require.NoError(t, err)
}

func TestDoRetriesRateLimitAndServerErrors(t *testing.T) {
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		switch n {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"retry_after": 0.01}`))
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	msgs, err := newTestClient(srv).FetchHistory(context.Background(), "222", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 3, n)
}

func TestDoPermanentErrorNoRetry(t *testing.T) {
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "Missing Access"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchHistory(context.Background(), "222", 10)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, IsAuth(err))
	assert.False(t, IsTransient(err))
}

func TestRequestTimeoutBoundsJSONCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.RequestTimeout = 20 * time.Millisecond

	_, err := c.FetchHistory(context.Background(), "222", 10)
	require.Error(t, err)
}

func TestRequestTimeoutDoesNotBoundUploads(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(p, []byte("video"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Slower than the request timeout; uploads answer to the
		// caller's deadline instead.
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.RequestTimeout = 20 * time.Millisecond

	err := c.SendFiles(context.Background(), "222", []string{p}, "")
	require.NoError(t, err)
}

func TestFindThreadByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/111/threads/active":
			_, _ = w.Write([]byte(`{"threads": [{"id": "9", "name": "Other", "parent_id": "222"}]}`))
		case "/channels/222/threads/archived/public":
			_, _ = w.Write([]byte(`{"threads": [{"id": "10", "name": "Season 1", "parent_id": "222"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	id, err := c.FindThreadByName(context.Background(), "111", "222", "Season 1")
	require.NoError(t, err)
	assert.Equal(t, "10", id)

	id, err = c.FindThreadByName(context.Background(), "111", "222", "Missing")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestCreateForumPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels/222/threads", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Season 1", payload["name"])
		assert.Equal(t, []any{"t1"}, payload["applied_tags"])

		_, _ = w.Write([]byte(`{"id": "777"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(srv).CreateForumPost(context.Background(), "222", "Season 1", "Season 1", []string{"t1"})
	require.NoError(t, err)
	assert.Equal(t, "777", id)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CDN downloads must not leak the token.
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "movie.mp4")
	err := newTestClient(srv).Download(context.Background(), srv.URL+"/movie.mp4", dest)
	require.NoError(t, err)

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
}
