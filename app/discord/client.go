package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/you/disdrop/pkg/logger"
)

const (
	DefaultBaseURL = "https://discord.com/api/v10"

	userAgent = "disdrop (https://github.com/you/disdrop, 1.0)"

	defaultRetryMax = 4
	maxBackoff      = 10 * time.Second
	historyPageSize = 100
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is the REST gateway to the chat platform. Zero value plus a
// token works; HTTP, BaseURL and RetryMax exist as seams for tests.
type Client struct {
	Token string

	// TokenType "bot" sends "Bot <token>"; anything else sends the
	// token verbatim (user tokens).
	TokenType string

	HTTP     HTTPClient
	Log      logger.Logger
	BaseURL  string
	RetryMax int

	// RequestTimeout bounds JSON API calls (history pages, channel and
	// thread lookups). Uploads and downloads are exempt; those carry
	// their own deadlines on the caller's context, so a large transfer
	// is never killed by the short request timeout.
	RequestTimeout time.Duration
}

var channelURLRe = regexp.MustCompile(`discord(?:app)?\.com/channels/(\d+)/(\d+)(?:/(\d+))?`)

// ParseChannelURL extracts guild/channel/thread ids from a channel URL.
func ParseChannelURL(raw string) (ChannelRef, error) {
	m := channelURLRe.FindStringSubmatch(raw)
	if m == nil {
		return ChannelRef{}, fmt.Errorf("invalid channel URL %q: expected https://discord.com/channels/<guild>/<channel>", raw)
	}
	return ChannelRef{GuildID: m[1], ChannelID: m[2], ThreadID: m[3]}, nil
}

// FetchHistory returns up to limit most recent messages, newest first.
// On error the messages collected so far are returned alongside it, so
// callers can degrade instead of failing the run.
func (c *Client) FetchHistory(ctx context.Context, channelID string, limit int) ([]Message, error) {
	out := make([]Message, 0, limit)
	before := ""

	for len(out) < limit {
		page := historyPageSize
		if rest := limit - len(out); rest < page {
			page = rest
		}

		q := url.Values{}
		q.Set("limit", fmt.Sprint(page))
		if before != "" {
			q.Set("before", before)
		}

		var msgs []Message
		err := c.getJSON(ctx, fmt.Sprintf("/channels/%s/messages?%s", channelID, q.Encode()), &msgs)
		if err != nil {
			return out, fmt.Errorf("fetching history of channel %s: %w", channelID, err)
		}
		if len(msgs) == 0 {
			break
		}

		out = append(out, msgs...)
		before = msgs[len(msgs)-1].ID
	}

	return out, nil
}

// SendFiles posts one message carrying the given files as attachments.
func (c *Client) SendFiles(ctx context.Context, channelID string, paths []string, content string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files to send")
	}
	if len(paths) > 10 {
		return fmt.Errorf("too many attachments: %d", len(paths))
	}

	build := func() (*http.Request, error) {
		body := &bytes.Buffer{}
		w := multipart.NewWriter(body)
		for i, p := range paths {
			part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), filepath.Base(p))
			if err != nil {
				return nil, err
			}
			f, err := os.Open(p)
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", p, err)
			}
			_, err = io.Copy(part, f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", p, err)
			}
		}
		if content != "" {
			if err := w.WriteField("content", content); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+fmt.Sprintf("/channels/%s/messages", channelID), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}

	resp, err := c.do(ctx, true, build)
	if err != nil {
		return fmt.Errorf("uploading to channel %s: %w", channelID, err)
	}
	drain(resp)
	return nil
}

// SendText posts a plain text message.
func (c *Client) SendText(ctx context.Context, channelID, content string) error {
	err := c.postJSON(ctx, fmt.Sprintf("/channels/%s/messages", channelID), map[string]any{"content": content}, nil)
	if err != nil {
		return fmt.Errorf("sending text to channel %s: %w", channelID, err)
	}
	return nil
}

// LastMessageContent returns the content of the newest message in the
// channel, "" when the channel is empty.
func (c *Client) LastMessageContent(ctx context.Context, channelID string) (string, error) {
	var msgs []Message
	err := c.getJSON(ctx, fmt.Sprintf("/channels/%s/messages?limit=1", channelID), &msgs)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}
	return msgs[0].Content, nil
}

func (c *Client) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	var ch Channel
	err := c.getJSON(ctx, "/channels/"+channelID, &ch)
	if err != nil {
		return Channel{}, fmt.Errorf("fetching channel %s: %w", channelID, err)
	}
	return ch, nil
}

type threadList struct {
	Threads []Channel `json:"threads"`
}

// FindThreadByName looks for an existing thread of parentID with the
// exact name, searching active guild threads first and public archived
// ones second. Returns "" when no thread matches.
func (c *Client) FindThreadByName(ctx context.Context, guildID, parentID, name string) (string, error) {
	if guildID != "" {
		var active threadList
		err := c.getJSON(ctx, fmt.Sprintf("/guilds/%s/threads/active", guildID), &active)
		if err != nil {
			return "", fmt.Errorf("listing active threads: %w", err)
		}
		if id := matchThread(active.Threads, parentID, name); id != "" {
			return id, nil
		}
	}

	var archived threadList
	err := c.getJSON(ctx, fmt.Sprintf("/channels/%s/threads/archived/public", parentID), &archived)
	if err != nil {
		return "", fmt.Errorf("listing archived threads: %w", err)
	}
	return matchThread(archived.Threads, parentID, name), nil
}

func matchThread(threads []Channel, parentID, name string) string {
	for _, t := range threads {
		if t.Name == name && (t.ParentID == "" || t.ParentID == parentID) {
			return t.ID
		}
	}
	return ""
}

// CreateForumPost starts a new forum thread and returns its id.
func (c *Client) CreateForumPost(ctx context.Context, channelID, name, content string, tagIDs []string) (string, error) {
	payload := map[string]any{
		"name":                  name,
		"auto_archive_duration": 1440,
		"message":               map[string]any{"content": content},
	}
	if len(tagIDs) > 0 {
		payload["applied_tags"] = tagIDs
	}

	var thread Channel
	err := c.postJSON(ctx, fmt.Sprintf("/channels/%s/threads", channelID), payload, &thread)
	if err != nil {
		return "", fmt.Errorf("creating forum post %q: %w", name, err)
	}
	if thread.ID == "" {
		return "", fmt.Errorf("creating forum post %q: empty thread id in response", name)
	}
	return thread.ID, nil
}

// Download fetches an attachment URL into destPath. CDN URLs are
// unauthenticated, so no token is attached.
func (c *Client) Download(ctx context.Context, rawURL, destPath string) error {
	build := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}

	resp, err := c.do(ctx, false, build)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	_, err = io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	build := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.base()+path, nil)
	}
	resp, err := c.do(ctx, true, build)
	if err != nil {
		return err
	}
	return decode(resp, result)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling body: %w", err)
	}

	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
	resp, err := c.do(ctx, true, build)
	if err != nil {
		return err
	}
	if result == nil {
		drain(resp)
		return nil
	}
	return decode(resp, result)
}

// do performs one logical request with bounded retries: 429 waits the
// server-provided retry_after, 5xx and network errors back off with
// capped doubling, anything else returns immediately. The request is
// rebuilt per attempt because multipart bodies are not replayable.
func (c *Client) do(ctx context.Context, withAuth bool, build func() (*http.Request, error)) (*http.Response, error) {
	retryMax := c.RetryMax
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}

	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt <= retryMax; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		if withAuth {
			req.Header.Set("Authorization", c.authHeader())
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if !sleep(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			lastErr = &StatusError{Code: resp.StatusCode}
			c.logger().Warn("rate limited", "retry_after", wait)
			if !sleep(ctx, wait) {
				return nil, ctx.Err()
			}

		case resp.StatusCode >= 500:
			lastErr = &StatusError{Code: resp.StatusCode, Body: readBody(resp)}
			if !sleep(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff)

		default:
			return nil, &StatusError{Code: resp.StatusCode, Body: readBody(resp)}
		}
	}

	return nil, lastErr
}

// requestCtx bounds one logical JSON call, retries included.
func (c *Client) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.RequestTimeout)
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() HTTPClient {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() logger.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logger.Discard()
}

func (c *Client) authHeader() string {
	if strings.EqualFold(c.TokenType, "bot") {
		return "Bot " + c.Token
	}
	return c.Token
}

func decode(resp *http.Response, result any) error {
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func readBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(b))
}

func retryAfter(resp *http.Response) time.Duration {
	defer func() { _ = resp.Body.Close() }()
	var data struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || data.RetryAfter <= 0 {
		return time.Second
	}
	return time.Duration(data.RetryAfter * float64(time.Second))
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// sleep waits d or until ctx is done; false means the context won.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
