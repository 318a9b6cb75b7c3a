// Package tracker is a small REST client for the issue tracker that
// stores test tickets. It covers exactly the surface the tool needs:
// reading a ticket's embedded test record, commenting run results,
// attaching trace archives, raising defects and refreshing records.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/v0xg/replaybot/internal/logging"
)

// maxResponseSize bounds how much of a tracker response is read
const maxResponseSize = 5 << 20

// Options configures the tracker client
type Options struct {
	BaseURL string
	User    string
	Token   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client talks to the tracker's REST API
type Client struct {
	base  string
	user  string
	token string
	http  *http.Client
	log   *slog.Logger
}

// Issue is the slice of a tracker ticket the tool cares about
type Issue struct {
	Key         string
	Summary     string
	Description string
	Status      string
}

// NewIssue describes a defect to raise
type NewIssue struct {
	Project     string
	Summary     string
	Description string
	// Type defaults to Bug
	Type string
}

// StatusError is a non-2xx tracker response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("tracker returned %d: %s", e.Code, body)
}

// New creates a tracker client
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("tracker url required (set tracker_url)")
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(opts.BaseURL, "/"),
		user:  opts.User,
		token: opts.Token,
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

// Issue fetches one ticket
func (c *Client) Issue(ctx context.Context, key string) (*Issue, error) {
	data, err := c.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key, nil, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode issue %s: %w", key, err)
	}

	return &Issue{
		Key:         payload.Key,
		Summary:     payload.Fields.Summary,
		Description: payload.Fields.Description,
		Status:      payload.Fields.Status.Name,
	}, nil
}

// TestDocument fetches a ticket and extracts the test record embedded
// in its description
func (c *Client) TestDocument(ctx context.Context, ticket string) ([]byte, error) {
	issue, err := c.Issue(ctx, ticket)
	if err != nil {
		return nil, err
	}
	doc, err := ExtractRecord(issue.Description)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", ticket, err)
	}
	return doc, nil
}

// Comment posts a comment on a ticket
func (c *Client) Comment(ctx context.Context, ticket, body string) error {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("encode comment: %w", err)
	}
	header := http.Header{"Content-Type": {"application/json"}}
	_, err = c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+ticket+"/comment", bytes.NewReader(payload), header)
	if err != nil {
		return fmt.Errorf("comment on %s: %w", ticket, err)
	}
	c.log.Debug("comment posted", "ticket", ticket)
	return nil
}

// Attach uploads a file to a ticket
func (c *Client) Attach(ctx context.Context, ticket, filename string, r io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("build attachment: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("build attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build attachment: %w", err)
	}

	header := http.Header{
		"Content-Type":      {mw.FormDataContentType()},
		"X-Atlassian-Token": {"no-check"},
	}
	_, err = c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+ticket+"/attachments", &buf, header)
	if err != nil {
		return fmt.Errorf("attach %s to %s: %w", filename, ticket, err)
	}
	c.log.Debug("attachment uploaded", "ticket", ticket, "file", filename)
	return nil
}

// Create raises a new issue and returns its key
func (c *Client) Create(ctx context.Context, in NewIssue) (string, error) {
	issueType := in.Type
	if issueType == "" {
		issueType = "Bug"
	}
	payload, err := json.Marshal(map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": in.Project},
			"summary":     in.Summary,
			"description": in.Description,
			"issuetype":   map[string]string{"name": issueType},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode issue: %w", err)
	}

	header := http.Header{"Content-Type": {"application/json"}}
	data, err := c.do(ctx, http.MethodPost, "/rest/api/2/issue", bytes.NewReader(payload), header)
	if err != nil {
		return "", fmt.Errorf("create issue in %s: %w", in.Project, err)
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("decode created issue: %w", err)
	}
	return created.Key, nil
}

// UpdateDescription replaces a ticket's description, used to refresh
// the embedded test record
func (c *Client) UpdateDescription(ctx context.Context, ticket, description string) error {
	payload, err := json.Marshal(map[string]any{
		"fields": map[string]string{"description": description},
	})
	if err != nil {
		return fmt.Errorf("encode description: %w", err)
	}
	header := http.Header{"Content-Type": {"application/json"}}
	_, err = c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+ticket, bytes.NewReader(payload), header)
	if err != nil {
		return fmt.Errorf("update %s: %w", ticket, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build tracker request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.user != "" || c.token != "" {
		req.SetBasicAuth(c.user, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracker request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read tracker response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// ExtractRecord pulls the first embedded JSON object out of a ticket
// description. Markup braces like {code} fences are skipped because
// they never form valid JSON.
func ExtractRecord(description string) ([]byte, error) {
	for start := strings.Index(description, "{"); start != -1; {
		if end := matchBrace(description, start); end != -1 {
			candidate := []byte(description[start:end])
			if json.Valid(candidate) {
				return candidate, nil
			}
		}
		next := strings.Index(description[start+1:], "{")
		if next == -1 {
			break
		}
		start += 1 + next
	}
	return nil, fmt.Errorf("no test record found in description")
}

// ReplaceRecord swaps the test record embedded in a description for
// doc, preserving the surrounding prose. Descriptions without a record
// get the document appended in a code fence.
func ReplaceRecord(description string, doc []byte) string {
	for start := strings.Index(description, "{"); start != -1; {
		if end := matchBrace(description, start); end != -1 {
			if json.Valid([]byte(description[start:end])) {
				return description[:start] + string(doc) + description[end:]
			}
		}
		next := strings.Index(description[start+1:], "{")
		if next == -1 {
			break
		}
		start += 1 + next
	}
	return description + "\n\n{code:json}\n" + string(doc) + "\n{code}"
}

func matchBrace(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
