package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/replaybot/internal/classifier"
	"github.com/v0xg/replaybot/internal/config"
	"github.com/v0xg/replaybot/internal/instruction"
	"github.com/v0xg/replaybot/internal/scraper"
	"github.com/v0xg/replaybot/internal/storage"
	"github.com/v0xg/replaybot/internal/trace"
	"github.com/v0xg/replaybot/internal/tracker"
)

// The real client must satisfy the engine's tracker surface
var _ Tracker = (*tracker.Client)(nil)

type fakeTracker struct {
	doc         []byte
	description string
	createdKey  string

	comments    []string
	attachments []string
	updated     string
	created     []tracker.NewIssue
}

func (f *fakeTracker) Issue(ctx context.Context, key string) (*tracker.Issue, error) {
	return &tracker.Issue{Key: key, Summary: "ticket", Description: f.description, Status: "Open"}, nil
}

func (f *fakeTracker) TestDocument(ctx context.Context, ticket string) ([]byte, error) {
	if f.doc == nil {
		return nil, errors.New("ticket has no test record")
	}
	return f.doc, nil
}

func (f *fakeTracker) Comment(ctx context.Context, ticket, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeTracker) Attach(ctx context.Context, ticket, filename string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.attachments = append(f.attachments, fmt.Sprintf("%s:%d", filename, len(data)))
	return nil
}

func (f *fakeTracker) Create(ctx context.Context, in tracker.NewIssue) (string, error) {
	f.created = append(f.created, in)
	return f.createdKey, nil
}

func (f *fakeTracker) UpdateDescription(ctx context.Context, ticket, description string) error {
	f.updated = description
	return nil
}

func newTestEngine(t *testing.T, tk Tracker, st storage.Store, extra map[string]any) (*Engine, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := map[string]any{
		"artifacts_root": filepath.Join(dir, "artifacts"),
	}
	for k, v := range extra {
		cfg[k] = v
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "replaybot.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfgStore, err := config.Open(config.Options{Path: path, Passphrase: "test"})
	require.NoError(t, err)

	var buf bytes.Buffer
	e := New(Options{Config: cfgStore, Tracker: tk, Store: st, Out: &buf})
	return e, &buf, dir
}

func stubRun(captured **instruction.Set, fail error) func(context.Context, *trace.Recorder, *instruction.Set) error {
	return func(ctx context.Context, rec *trace.Recorder, set *instruction.Set) error {
		if captured != nil {
			*captured = set
		}
		rec.Start("fake-session")
		for i, in := range set.Items() {
			rec.RecordStep(i+1, in.Key, "step", in.Value, nil)
			rec.Snapshot("<html></html>")
		}
		return fail
	}
}

const loginDoc = `{
	"login_test": {
		"url": "https://example.com/login",
		"input": {"placeholder": {"Email": "qa@example.com"}},
		"button": {"Login": "login-submit"}
	}
}`

func TestHandleRun(t *testing.T) {
	ft := &fakeTracker{doc: []byte(loginDoc)}
	st := storage.NewLocalStore(t.TempDir(), nil)
	e, out, dir := newTestEngine(t, ft, st, nil)

	var captured *instruction.Set
	e.runSession = stubRun(&captured, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "run", Ticket: "QA-1"})
	require.NoError(t, err)

	// The dispatcher sees prefix-relative keys
	require.NotNil(t, captured)
	keys := captured.Keys()
	assert.Equal(t, []string{"url", "input.placeholder.Email", "button.Login"}, keys)

	// The run landed in a labeled artifact directory
	zips, err := filepath.Glob(filepath.Join(dir, "artifacts", "login_test_*", "trace.zip"))
	require.NoError(t, err)
	require.Len(t, zips, 1)

	sum, err := trace.ReadSummary(zips[0])
	require.NoError(t, err)
	assert.Equal(t, "fake-session", sum.SessionID)
	assert.Len(t, sum.Steps, 3)
	assert.Equal(t, []string{"sources/instructions.json"}, sum.Sources)

	// The outcome went back to the ticket
	require.Len(t, ft.comments, 1)
	assert.Contains(t, ft.comments[0], "login_test")
	assert.Contains(t, ft.comments[0], "passed")
	require.Len(t, ft.attachments, 1)
	assert.Contains(t, ft.attachments[0], "trace.zip:")

	// And the archive was uploaded to storage
	objects, err := st.List(context.Background(), "traces/login_test_")
	require.NoError(t, err)
	assert.Len(t, objects, 1)

	assert.Contains(t, out.String(), "Run complete")
}

func TestHandleRunFailureStillReports(t *testing.T) {
	ft := &fakeTracker{doc: []byte(loginDoc)}
	e, _, dir := newTestEngine(t, ft, nil, nil)
	e.runSession = stubRun(nil, errors.New("locate button[name='login-submit']: not found"))

	err := e.Handle(context.Background(), &classifier.Request{Action: "run", Ticket: "QA-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run QA-1")

	// Failed runs keep their evidence
	zips, err := filepath.Glob(filepath.Join(dir, "artifacts", "login_test_*", "trace.zip"))
	require.NoError(t, err)
	assert.Len(t, zips, 1)

	require.Len(t, ft.comments, 1)
	assert.Contains(t, ft.comments[0], "failed")
	assert.Len(t, ft.attachments, 1)
}

func TestHandleRunAppliesEnvironment(t *testing.T) {
	doc := `{
		"login_test": {
			"url": "/login",
			"input": {"placeholder": {"Email": "$USERNAME", "Password": "$PASSWORD"}},
			"button": {"Login": "go"}
		}
	}`
	ft := &fakeTracker{doc: []byte(doc)}
	e, out, _ := newTestEngine(t, ft, nil, map[string]any{
		"environments": map[string]any{
			"staging": map[string]any{
				"url":      "https://staging.example.com/",
				"username": "qa-bot",
				"password": "hunter2",
			},
		},
	})

	var captured *instruction.Set
	e.runSession = stubRun(&captured, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "run", Ticket: "QA-1", Environment: "staging"})
	require.NoError(t, err)

	url, _ := captured.Get("url")
	assert.Equal(t, "https://staging.example.com/login", url)
	user, _ := captured.Get("input.placeholder.Email")
	assert.Equal(t, "qa-bot", user)
	pass, _ := captured.Get("input.placeholder.Password")
	assert.Equal(t, "hunter2", pass)
	assert.Contains(t, out.String(), "environment staging")
}

func TestHandleRunUnknownEnvironment(t *testing.T) {
	ft := &fakeTracker{doc: []byte(loginDoc)}
	e, _, _ := newTestEngine(t, ft, nil, nil)
	e.runSession = stubRun(nil, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "run", Ticket: "QA-1", Environment: "prod"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prod")
}

func TestHandleRunWithoutTracker(t *testing.T) {
	e, _, _ := newTestEngine(t, nil, nil, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "run", Ticket: "QA-1"})
	require.ErrorIs(t, err, errNoTracker)
}

func TestApplyEnvironmentLeavesFillValuesAlone(t *testing.T) {
	set := instruction.NewSet()
	set.Add("url", "/dashboard")
	set.Add("input.placeholder.Path", "/tmp/report.csv")

	env := config.Environment{URL: "https://app.example.com"}
	got := applyEnvironment(set, env)

	url, _ := got.Get("url")
	assert.Equal(t, "https://app.example.com/dashboard", url)
	// A fill value that merely looks like a path is not a navigation
	fill, _ := got.Get("input.placeholder.Path")
	assert.Equal(t, "/tmp/report.csv", fill)
}

func TestWaitPolicySelection(t *testing.T) {
	// "idle" selects the network-idle policy; anything else keeps the
	// dispatcher's fixed-delay default (nil).
	e, _, _ := newTestEngine(t, nil, nil, map[string]any{"pacing": "idle"})
	assert.NotNil(t, e.waitPolicy(nil))

	e, _, _ = newTestEngine(t, nil, nil, nil)
	assert.Nil(t, e.waitPolicy(nil))

	e, _, _ = newTestEngine(t, nil, nil, map[string]any{"pacing": "warp"})
	assert.Nil(t, e.waitPolicy(nil))
}

func TestHandleUpdateFromFile(t *testing.T) {
	ft := &fakeTracker{description: "Steps:\n{code:json}\n{\"login_test\": {\"url\": \"https://old\"}}\n{code}\nKeep in sync."}
	st := storage.NewLocalStore(t.TempDir(), nil)
	e, out, dir := newTestEngine(t, ft, st, nil)

	recordPath := filepath.Join(dir, "login_test.json")
	require.NoError(t, os.WriteFile(recordPath, []byte(loginDoc), 0o600))

	err := e.Handle(context.Background(), &classifier.Request{Action: "update", Ticket: "QA-2", Path: recordPath})
	require.NoError(t, err)

	assert.Contains(t, ft.updated, "https://example.com/login")
	assert.NotContains(t, ft.updated, "https://old")
	assert.Contains(t, ft.updated, "Keep in sync.")
	assert.Contains(t, out.String(), "Updated test record")

	// A version landed in storage
	objects, err := st.List(context.Background(), "records/login_test_")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestHandleUpdateFromStorage(t *testing.T) {
	ft := &fakeTracker{description: "no record yet"}
	st := storage.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, st.Put(context.Background(), "records/login_test_v1.json", strings.NewReader(loginDoc)))

	e, _, _ := newTestEngine(t, ft, st, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "update", Ticket: "QA-2", Record: "login_test"})
	require.NoError(t, err)
	assert.Contains(t, ft.updated, "no record yet")
	assert.Contains(t, ft.updated, "https://example.com/login")
}

func TestHandleUpdateRejectsBadRecord(t *testing.T) {
	ft := &fakeTracker{}
	e, _, dir := newTestEngine(t, ft, nil, nil)

	recordPath := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(recordPath, []byte("{not json"), 0o600))

	err := e.Handle(context.Background(), &classifier.Request{Action: "update", Ticket: "QA-2", Path: recordPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid test document")
	assert.Empty(t, ft.updated)
}

func TestHandleList(t *testing.T) {
	st := storage.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, st.Put(context.Background(), "records/login_test_v1.json", strings.NewReader("{}")))
	require.NoError(t, st.Put(context.Background(), "traces/login_test_20250102_140310.zip", strings.NewReader("zip")))

	e, out, _ := newTestEngine(t, nil, st, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "list"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "records/login_test_v1.json")
	assert.Contains(t, out.String(), "traces/login_test_20250102_140310.zip")
}

func TestHandleListEmpty(t *testing.T) {
	e, out, _ := newTestEngine(t, nil, storage.NewLocalStore(t.TempDir(), nil), nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "list"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "no stored objects")
}

func TestHandleShowByPath(t *testing.T) {
	runDir := t.TempDir()
	rec := trace.NewRecorder(trace.Options{Dir: runDir})
	rec.Start("shown-session")
	rec.RecordStep(1, "url", "navigate", "https://example.com", nil)
	zipPath, err := rec.Stop()
	require.NoError(t, err)

	e, out, _ := newTestEngine(t, nil, nil, nil)

	err = e.Handle(context.Background(), &classifier.Request{Action: "show", Path: zipPath})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "shown-session")
	assert.Contains(t, out.String(), "navigate")
}

func TestHandleShowFromStorage(t *testing.T) {
	runDir := t.TempDir()
	rec := trace.NewRecorder(trace.Options{Dir: runDir})
	rec.Start("stored-session")
	zipPath, err := rec.Stop()
	require.NoError(t, err)

	st := storage.NewLocalStore(t.TempDir(), nil)
	f, err := os.Open(zipPath)
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), "traces/login_test_20250102_140310.zip", f))
	f.Close()

	e, out, _ := newTestEngine(t, nil, st, nil)

	err = e.Handle(context.Background(), &classifier.Request{Action: "show", Record: "login_test"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "stored-session")
}

func TestHandleRaise(t *testing.T) {
	ft := &fakeTracker{createdKey: "QA-99"}
	e, out, _ := newTestEngine(t, ft, nil, nil)

	err := e.Handle(context.Background(), &classifier.Request{
		Action:      "raise",
		Project:     "QA",
		Summary:     "login button missing on staging",
		Environment: "staging",
	})
	require.NoError(t, err)

	require.Len(t, ft.created, 1)
	assert.Equal(t, "QA", ft.created[0].Project)
	assert.Equal(t, "login button missing on staging", ft.created[0].Summary)
	assert.Contains(t, ft.created[0].Description, "Environment: staging")
	assert.Contains(t, out.String(), "QA-99")
}

func TestHandleRaiseAttachesLatestTrace(t *testing.T) {
	ft := &fakeTracker{createdKey: "QA-100"}
	st := storage.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, st.Put(context.Background(), "traces/login_test_20250102_140310.zip", strings.NewReader("zipbytes")))

	e, out, _ := newTestEngine(t, ft, st, nil)

	err := e.Handle(context.Background(), &classifier.Request{
		Action:  "raise",
		Project: "QA",
		Record:  "login_test",
	})
	require.NoError(t, err)

	require.Len(t, ft.attachments, 1)
	assert.Equal(t, "trace.zip:8", ft.attachments[0])
	assert.Contains(t, out.String(), "Attached latest trace")
}

func TestHandleScrape(t *testing.T) {
	e, out, _ := newTestEngine(t, nil, nil, nil)
	e.scrapeFn = func(ctx context.Context, url string) (*scraper.Snapshot, error) {
		assert.Equal(t, "https://example.com", url)
		return &scraper.Snapshot{
			URL:   url,
			Title: "Example",
			Buttons: []scraper.Button{
				{Name: "go", Selector: `//button[@name='go']`},
			},
		}, nil
	}

	err := e.Handle(context.Background(), &classifier.Request{Action: "scrape", URL: "https://example.com"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"title": "Example"`)
	assert.Contains(t, out.String(), `//button[@name='go']`)
}

func TestHandleSetIsRedirected(t *testing.T) {
	e, _, _ := newTestEngine(t, nil, nil, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "set"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set <key> <value>")
}

func TestHandleUnknownAction(t *testing.T) {
	e, _, _ := newTestEngine(t, nil, nil, nil)

	err := e.Handle(context.Background(), &classifier.Request{Action: "teleport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported action")
}
