package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, User: "bot", Token: "tok"})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker url")
}

func TestIssue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/api/2/issue/QA-42", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "tok", pass)

		io.WriteString(w, `{
			"key": "QA-42",
			"fields": {
				"summary": "Login regression",
				"description": "steps below",
				"status": {"name": "Open"}
			}
		}`)
	})

	issue, err := c.Issue(context.Background(), "QA-42")
	require.NoError(t, err)
	assert.Equal(t, "QA-42", issue.Key)
	assert.Equal(t, "Login regression", issue.Summary)
	assert.Equal(t, "steps below", issue.Description)
	assert.Equal(t, "Open", issue.Status)
}

func TestIssueStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"errorMessages":["Issue does not exist"]}`)
	})

	_, err := c.Issue(context.Background(), "QA-404")
	require.Error(t, err)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.Code)
	assert.Contains(t, serr.Body, "does not exist")
}

func TestTestDocumentExtractsRecordFromCodeFence(t *testing.T) {
	description := "Automated steps:\n{code:json}\n" +
		`{"login_test": {"url": "https://example.com", "button": {"Login": "go"}}}` +
		"\n{code}\nRun on staging."
	payload := map[string]any{
		"key": "QA-7",
		"fields": map[string]any{
			"summary":     "login",
			"description": description,
			"status":      map[string]string{"name": "Open"},
		},
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	})

	doc, err := c.TestDocument(context.Background(), "QA-7")
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(doc, &record))
	require.Contains(t, record, "login_test")
}

func TestTestDocumentWithoutRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"key":"QA-8","fields":{"summary":"s","description":"no json here","status":{"name":"Open"}}}`)
	})

	_, err := c.TestDocument(context.Background(), "QA-8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QA-8")
	assert.Contains(t, err.Error(), "no test record")
}

func TestComment(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/2/issue/QA-9/comment", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"1"}`)
	})

	require.NoError(t, c.Comment(context.Background(), "QA-9", "run passed"))
	assert.Equal(t, "run passed", got["body"])
}

func TestAttach(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/issue/QA-10/attachments", r.URL.Path)
		assert.Equal(t, "no-check", r.Header.Get("X-Atlassian-Token"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "trace.zip", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "zip-bytes", string(data))

		io.WriteString(w, `[{"id":"10001"}]`)
	})

	err := c.Attach(context.Background(), "QA-10", "trace.zip", strings.NewReader("zip-bytes"))
	require.NoError(t, err)
}

func TestCreate(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/2/issue", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"key":"QA-43"}`)
	})

	key, err := c.Create(context.Background(), NewIssue{
		Project:     "QA",
		Summary:     "Login button missing",
		Description: "found during automated run",
	})
	require.NoError(t, err)
	assert.Equal(t, "QA-43", key)

	fields := got["fields"].(map[string]any)
	assert.Equal(t, "Login button missing", fields["summary"])
	assert.Equal(t, "QA", fields["project"].(map[string]any)["key"])
	assert.Equal(t, "Bug", fields["issuetype"].(map[string]any)["name"])
}

func TestUpdateDescription(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/2/issue/QA-11", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.UpdateDescription(context.Background(), "QA-11", "fresh record"))
	fields := got["fields"].(map[string]any)
	assert.Equal(t, "fresh record", fields["description"])
}

func TestExtractRecord(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		doc, err := ExtractRecord(`{"a": {"b": 1}}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": {"b": 1}}`, string(doc))
	})

	t.Run("object inside prose", func(t *testing.T) {
		doc, err := ExtractRecord(`Steps documented here: {"run": {"url": "https://x"}} (QA team)`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"run": {"url": "https://x"}}`, string(doc))
	})

	t.Run("skips markup braces", func(t *testing.T) {
		doc, err := ExtractRecord("{code:json}\n{\"run\": {\"url\": \"https://x\"}}\n{code}")
		require.NoError(t, err)
		assert.JSONEq(t, `{"run": {"url": "https://x"}}`, string(doc))
	})

	t.Run("no record", func(t *testing.T) {
		_, err := ExtractRecord("plain text {not json} more text")
		require.Error(t, err)
	})
}

func TestReplaceRecord(t *testing.T) {
	t.Run("preserves surrounding prose", func(t *testing.T) {
		description := "Steps:\n{code:json}\n{\"run\": {\"url\": \"https://old\"}}\n{code}\nPing QA when done."

		got := ReplaceRecord(description, []byte(`{"run": {"url": "https://new"}}`))
		assert.Equal(t, "Steps:\n{code:json}\n{\"run\": {\"url\": \"https://new\"}}\n{code}\nPing QA when done.", got)
	})

	t.Run("appends when no record exists", func(t *testing.T) {
		got := ReplaceRecord("manual steps only", []byte(`{"run": {}}`))
		assert.Contains(t, got, "manual steps only")
		assert.Contains(t, got, "{code:json}")

		doc, err := ExtractRecord(got)
		require.NoError(t, err)
		assert.JSONEq(t, `{"run": {}}`, string(doc))
	})
}
