// Package engine routes classified requests across the tracker, the
// browser, storage and the trace recorder.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/v0xg/replaybot/internal/browser"
	"github.com/v0xg/replaybot/internal/classifier"
	"github.com/v0xg/replaybot/internal/config"
	"github.com/v0xg/replaybot/internal/instruction"
	"github.com/v0xg/replaybot/internal/interpreter"
	"github.com/v0xg/replaybot/internal/logging"
	"github.com/v0xg/replaybot/internal/scraper"
	"github.com/v0xg/replaybot/internal/storage"
	"github.com/v0xg/replaybot/internal/trace"
	"github.com/v0xg/replaybot/internal/tracker"
)

var (
	errNoTracker = errors.New("tracker not configured (set tracker_url, tracker_user and tracker_token)")
	errNoStore   = errors.New("storage not configured (set storage to local or s3)")
)

// Credential tokens test records carry instead of real secrets
const (
	tokenUsername = "$USERNAME"
	tokenPassword = "$PASSWORD"
)

// Tracker is the tracker surface the engine drives
type Tracker interface {
	Issue(ctx context.Context, key string) (*tracker.Issue, error)
	TestDocument(ctx context.Context, ticket string) ([]byte, error)
	Comment(ctx context.Context, ticket, body string) error
	Attach(ctx context.Context, ticket, filename string, r io.Reader) error
	Create(ctx context.Context, in tracker.NewIssue) (string, error)
	UpdateDescription(ctx context.Context, ticket, description string) error
}

// Options wires the engine's collaborators. Tracker and Store may be
// nil; requests that need them fail with a configuration hint.
type Options struct {
	Config  *config.Store
	Tracker Tracker
	Store   storage.Store
	Logger  *slog.Logger
	Out     io.Writer
}

// Engine executes classified requests
type Engine struct {
	cfg     *config.Store
	tracker Tracker
	store   storage.Store
	log     *slog.Logger
	out     io.Writer

	// runSession and scrapeFn are swapped in tests to keep a live
	// browser out of the loop
	runSession func(ctx context.Context, rec *trace.Recorder, set *instruction.Set) error
	scrapeFn   func(ctx context.Context, url string) (*scraper.Snapshot, error)
}

// New creates an engine
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	e := &Engine{
		cfg:     opts.Config,
		tracker: opts.Tracker,
		store:   opts.Store,
		log:     log,
		out:     out,
	}
	e.runSession = e.browserRun
	e.scrapeFn = e.browserScrape
	return e
}

// Handle routes one classified request
func (e *Engine) Handle(ctx context.Context, req *classifier.Request) error {
	switch req.Action {
	case classifier.ActionRun:
		return e.runTest(ctx, req)
	case classifier.ActionUpdate:
		return e.updateRecord(ctx, req)
	case classifier.ActionList:
		return e.listObjects(ctx, req)
	case classifier.ActionShow:
		return e.showRun(ctx, req)
	case classifier.ActionRaise:
		return e.raiseDefect(ctx, req)
	case classifier.ActionScrape:
		return e.scrape(ctx, req)
	case classifier.ActionSet:
		return fmt.Errorf("settings are changed directly: set <key> <value>")
	default:
		return fmt.Errorf("unsupported action: %s", req.Action)
	}
}

// runTest replays a ticket's test document in a fresh browser session
// and reports the outcome back to the ticket
func (e *Engine) runTest(ctx context.Context, req *classifier.Request) error {
	if e.tracker == nil {
		return errNoTracker
	}

	fmt.Fprintf(e.out, "→ Fetching test document from %s...\n", req.Ticket)
	doc, err := e.tracker.TestDocument(ctx, req.Ticket)
	if err != nil {
		return err
	}

	set, err := instruction.Flatten(doc)
	if err != nil {
		return fmt.Errorf("parse test document: %w", err)
	}
	prefix, relative := instruction.Normalize(set)
	label := instruction.PrefixLabel(prefix)
	e.log.Info("test document loaded", "ticket", req.Ticket, "test", label, "instructions", relative.Len())

	if req.Environment != "" {
		env, err := e.cfg.Environment(req.Environment)
		if err != nil {
			return err
		}
		relative = applyEnvironment(relative, env)
		fmt.Fprintf(e.out, "→ Using environment %s\n", req.Environment)
	}

	artifactsRoot, err := e.cfg.Get("artifacts_root")
	if err != nil {
		return err
	}
	dirPrefix, err := e.cfg.Get("artifact_prefix")
	if err != nil {
		return err
	}
	if dirPrefix == "" {
		dirPrefix = label
	}
	runDir, err := trace.NewRunDir(artifactsRoot, dirPrefix)
	if err != nil {
		return err
	}

	rec := trace.NewRecorder(trace.Options{
		Dir:         runDir,
		Screenshots: e.cfg.GetBool("screenshots"),
		Logger:      e.log,
	})
	rec.SetSource("instructions.json", doc)

	fmt.Fprintf(e.out, "→ Running %d instructions...\n", relative.Len())
	runErr := e.runSession(ctx, rec, relative)

	zipPath, stopErr := rec.Stop()
	if stopErr != nil {
		e.log.Error("trace archive failed", "error", stopErr)
	}

	// Evidence still lands when the run was canceled
	reportCtx := context.WithoutCancel(ctx)
	if zipPath != "" {
		e.archiveRun(reportCtx, zipPath)
	}
	e.reportRun(reportCtx, req.Ticket, label, zipPath, runErr)

	if runErr != nil {
		return fmt.Errorf("run %s: %w", req.Ticket, runErr)
	}
	fmt.Fprintf(e.out, "→ Run complete, trace at %s\n", zipPath)
	return nil
}

// browserRun opens a session per the configured viewport and lets the
// dispatcher replay the instruction set in it
func (e *Engine) browserRun(ctx context.Context, rec *trace.Recorder, set *instruction.Set) error {
	session, err := e.openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	rec.Start(session.ID())
	session.AttachRecorder(rec)

	d := interpreter.NewDispatcher(session, interpreter.Options{
		Wait:     e.waitPolicy(session),
		Recorder: rec,
		Logger:   e.log,
	})
	return d.Run(ctx, set)
}

// waitPolicy maps the pacing setting to a dispatch wait policy. Nil keeps
// the dispatcher's fixed-delay default.
func (e *Engine) waitPolicy(session *browser.Session) interpreter.WaitPolicy {
	pacing, err := e.cfg.Get("pacing")
	if err != nil {
		e.log.Warn("pacing setting unreadable, using fixed delay", "error", err)
		return nil
	}
	switch pacing {
	case "", "fixed":
		return nil
	case "idle":
		return session.IdleWait(browser.DefaultIdleWindow, browser.DefaultIdleBound)
	default:
		e.log.Warn("unknown pacing, using fixed delay", "pacing", pacing)
		return nil
	}
}

func (e *Engine) openSession() (*browser.Session, error) {
	profileName, err := e.cfg.Get("viewport")
	if err != nil {
		return nil, err
	}
	profile, ok := browser.ProfileByName(profileName)
	if !ok {
		if profileName != "" {
			e.log.Warn("unknown viewport, using default", "viewport", profileName)
		}
		profile = browser.DefaultProfile
	}
	return browser.Open(browser.Options{
		Headless: !e.cfg.GetBool("headful"),
		Profile:  profile,
		Logger:   e.log,
	})
}

// archiveRun uploads the trace so runs outlive the workstation that
// produced them. Failures degrade to the local copy.
func (e *Engine) archiveRun(ctx context.Context, zipPath string) {
	if e.store == nil {
		return
	}
	f, err := os.Open(zipPath)
	if err != nil {
		e.log.Warn("trace upload skipped", "error", err)
		return
	}
	defer f.Close()

	key := "traces/" + filepath.Base(filepath.Dir(zipPath)) + ".zip"
	if err := e.store.Put(ctx, key, f); err != nil {
		e.log.Warn("trace upload failed", "key", key, "error", err)
		return
	}
	fmt.Fprintf(e.out, "→ Trace stored at %s\n", key)
}

// reportRun comments the outcome on the ticket and attaches the trace
func (e *Engine) reportRun(ctx context.Context, ticket, label, zipPath string, runErr error) {
	var body string
	if runErr != nil {
		body = fmt.Sprintf("Automated run of %s failed: %s", label, runErr)
	} else {
		body = fmt.Sprintf("Automated run of %s passed.", label)
	}
	if err := e.tracker.Comment(ctx, ticket, body); err != nil {
		e.log.Warn("result comment failed", "ticket", ticket, "error", err)
	}

	if zipPath == "" {
		return
	}
	f, err := os.Open(zipPath)
	if err != nil {
		e.log.Warn("trace attach skipped", "error", err)
		return
	}
	defer f.Close()
	if err := e.tracker.Attach(ctx, ticket, "trace.zip", f); err != nil {
		e.log.Warn("trace attach failed", "ticket", ticket, "error", err)
	}
}

// applyEnvironment resolves credential tokens and root-relative URLs
// against the target environment, keeping secrets and hosts out of
// tickets
func applyEnvironment(set *instruction.Set, env config.Environment) *instruction.Set {
	out := instruction.NewSet()
	for _, in := range set.Items() {
		value := in.Value
		switch value {
		case tokenUsername:
			if env.Username != "" {
				value = env.Username
			}
		case tokenPassword:
			if env.Password != "" {
				value = env.Password
			}
		}
		if env.URL != "" && strings.HasPrefix(value, "/") {
			act := interpreter.Classify(instruction.Instruction{Key: in.Key, Value: value})
			if act.Kind == interpreter.KindNavigate {
				value = strings.TrimRight(env.URL, "/") + value
			}
		}
		out.Add(in.Key, value)
	}
	return out
}
