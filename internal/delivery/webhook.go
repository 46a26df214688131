package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

const (
	// MaxContentRunes is the platform's message length limit.
	MaxContentRunes = 2000
	// MaxUsernameRunes is the webhook display name limit.
	MaxUsernameRunes = 80
	// MaxUploadBytes bounds each re-uploaded attachment; larger files are
	// linked instead.
	MaxUploadBytes = 25 << 20
)

// WebhookSink delivers reposts through an incoming webhook, impersonating
// the original author's name and avatar.
type WebhookSink struct {
	URL string

	// Post sends the webhook request. Its retry policy never retries a
	// response that may have created a message.
	Post *retryablehttp.Client
	// Fetch downloads attachments and may retry freely.
	Fetch *retryablehttp.Client

	log zerolog.Logger
}

var _ Sink = (*WebhookSink)(nil)

// NewWebhookSink returns a sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	lg := sysutil.Component("delivery")

	post := retryablehttp.NewClient()
	post.RetryMax = 3
	post.RetryWaitMin = 500 * time.Millisecond
	post.RetryWaitMax = 10 * time.Second
	post.HTTPClient.Timeout = 60 * time.Second
	post.CheckRetry = PostRetryPolicy
	post.Logger = nil

	fetch := retryablehttp.NewClient()
	fetch.RetryMax = 2
	fetch.RetryWaitMin = 250 * time.Millisecond
	fetch.RetryWaitMax = 2 * time.Second
	fetch.HTTPClient.Timeout = 60 * time.Second
	fetch.Logger = nil

	return &WebhookSink{URL: url, Post: post, Fetch: fetch, log: lg}
}

// PostRetryPolicy retries a webhook post only when nothing can have been
// published: a 429 or a connection that was never established. 5xx and
// mid-request failures are not retried.
func PostRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		var op *net.OpError
		if errors.As(err, &op) && op.Op == "dial" {
			return true, nil
		}
		return false, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

type webhookAttachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

type webhookPayload struct {
	Username        string              `json:"username,omitempty"`
	AvatarURL       string              `json:"avatar_url,omitempty"`
	Content         string              `json:"content"`
	AllowedMentions map[string][]string `json:"allowed_mentions"`
	Attachments     []webhookAttachment `json:"attachments,omitempty"`
}

type upload struct {
	name string
	data []byte
}

// Deliver downloads the attachments and posts one webhook message.
// Attachments that cannot be downloaded or are too large are linked in the
// text instead, so media problems never block a repost.
func (s *WebhookSink) Deliver(ctx context.Context, r Repost) error {
	var (
		files []upload
		links []string
	)
	for _, a := range r.Attachments {
		if a.Size > MaxUploadBytes {
			links = append(links, a.URL)
			continue
		}
		data, err := s.download(ctx, a.URL)
		if err != nil {
			s.log.Warn().Err(err).Str("post_id", r.PostID).Str("url", a.URL).Msg("attachment download failed; linking instead")
			links = append(links, a.URL)
			continue
		}
		files = append(files, upload{name: sysutil.FirstNonEmpty(a.Filename, "file"+strconv.Itoa(len(files))), data: data})
	}

	body := r.Content
	if len(links) > 0 {
		body = strings.TrimSpace(body + "\n" + strings.Join(links, "\n"))
	}

	p := webhookPayload{
		Username:        clipRunes(sysutil.FirstNonEmpty(r.AuthorName, "unknown"), MaxUsernameRunes),
		AvatarURL:       r.AvatarURL,
		Content:         FormatContent(body, r.Backlink),
		AllowedMentions: map[string][]string{"parse": {}},
	}
	for i, f := range files {
		p.Attachments = append(p.Attachments, webhookAttachment{ID: i, Filename: f.name})
	}

	buf, contentType, err := encodeMultipart(p, files)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrDeliveryFailed, err)
	}

	sep := "?"
	if strings.Contains(s.URL, "?") {
		sep = "&"
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.URL+sep+"wait=true", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.Post.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *WebhookSink) download(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Fetch.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadBytes {
		return nil, errors.New("attachment too large")
	}
	return data, nil
}

func encodeMultipart(p webhookPayload, files []upload) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	js, err := json.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="payload_json"`)
	h.Set("Content-Type", "application/json")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(js); err != nil {
		return nil, "", err
	}

	for i, f := range files {
		fw, err := mw.CreateFormFile("files["+strconv.Itoa(i)+"]", f.name)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(f.data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// FormatContent joins the post text and the back-link on separate lines,
// shortening the text so the result fits MaxContentRunes. The back-link is
// never cut.
func FormatContent(text, backlink string) string {
	text = strings.TrimSpace(text)
	if backlink == "" {
		return clipRunes(text, MaxContentRunes)
	}
	if text == "" {
		return backlink
	}
	room := MaxContentRunes - utf8.RuneCountInString(backlink) - 1
	if room <= 0 {
		return backlink
	}
	if utf8.RuneCountInString(text) > room {
		text = strings.TrimRightFunc(clipRunes(text, room-1), isSpace) + "…"
	}
	return text + "\n" + backlink
}

func clipRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '\r' }
