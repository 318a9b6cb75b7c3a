package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/v0xg/replaybot/internal/classifier"
	"github.com/v0xg/replaybot/internal/instruction"
	"github.com/v0xg/replaybot/internal/scraper"
	"github.com/v0xg/replaybot/internal/trace"
	"github.com/v0xg/replaybot/internal/tracker"
)

// updateRecord refreshes the test record embedded in a ticket from a
// local file or the record store, keeping a versioned copy in storage
func (e *Engine) updateRecord(ctx context.Context, req *classifier.Request) error {
	if e.tracker == nil {
		return errNoTracker
	}

	doc, origin, err := e.loadRecord(ctx, req)
	if err != nil {
		return err
	}
	set, err := instruction.Flatten(doc)
	if err != nil {
		return fmt.Errorf("record from %s is not a valid test document: %w", origin, err)
	}
	prefix, _ := instruction.Normalize(set)
	label := instruction.PrefixLabel(prefix)

	issue, err := e.tracker.Issue(ctx, req.Ticket)
	if err != nil {
		return err
	}
	updated := tracker.ReplaceRecord(issue.Description, doc)
	if err := e.tracker.UpdateDescription(ctx, req.Ticket, updated); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "→ Updated test record on %s from %s\n", req.Ticket, origin)

	// Version the record so earlier revisions stay retrievable
	if e.store != nil && req.Path != "" {
		key := fmt.Sprintf("records/%s_%s.json", label, time.Now().Format("20060102_150405"))
		if err := e.store.Put(ctx, key, bytes.NewReader(doc)); err != nil {
			e.log.Warn("record version not stored", "key", key, "error", err)
		} else {
			fmt.Fprintf(e.out, "→ Record version stored at %s\n", key)
		}
	}
	return nil
}

// loadRecord reads the new record either from an explicit file or from
// the newest stored version
func (e *Engine) loadRecord(ctx context.Context, req *classifier.Request) ([]byte, string, error) {
	if req.Path != "" {
		doc, err := os.ReadFile(req.Path)
		if err != nil {
			return nil, "", fmt.Errorf("read record: %w", err)
		}
		return doc, req.Path, nil
	}

	if e.store == nil {
		return nil, "", fmt.Errorf("no record file given and storage not configured")
	}
	prefix := "records/"
	if req.Record != "" {
		prefix += req.Record
	}
	obj, err := e.store.Latest(ctx, prefix)
	if err != nil {
		return nil, "", err
	}
	rc, err := e.store.Get(ctx, obj.Key)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()
	doc, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", obj.Key, err)
	}
	return doc, obj.Key, nil
}

// listObjects prints the stored records and traces
func (e *Engine) listObjects(ctx context.Context, req *classifier.Request) error {
	if e.store == nil {
		return errNoStore
	}
	prefix := ""
	if req.Record != "" {
		prefix = "records/" + req.Record
	}
	objects, err := e.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		fmt.Fprintln(e.out, "no stored objects")
		return nil
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	for _, obj := range objects {
		fmt.Fprintf(e.out, "%-60s %8d  %s\n", obj.Key, obj.Size, obj.Modified.Format(time.RFC3339))
	}
	return nil
}

// showRun prints the digest of an archived trace, fetching it from
// storage when no path was given
func (e *Engine) showRun(ctx context.Context, req *classifier.Request) error {
	path := req.Path
	if path == "" {
		fetched, err := e.fetchTrace(ctx, req.Record)
		if err != nil {
			return err
		}
		defer os.Remove(fetched)
		path = fetched
	}

	sum, err := trace.ReadSummary(path)
	if err != nil {
		return err
	}
	fmt.Fprint(e.out, sum.String())
	return nil
}

func (e *Engine) fetchTrace(ctx context.Context, record string) (string, error) {
	if e.store == nil {
		return "", errNoStore
	}
	obj, err := e.store.Latest(ctx, "traces/"+record)
	if err != nil {
		return "", err
	}
	rc, err := e.store.Get(ctx, obj.Key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "replaybot-trace-*.zip")
	if err != nil {
		return "", fmt.Errorf("stage trace: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", obj.Key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// raiseDefect creates a tracker issue from the classified prompt
func (e *Engine) raiseDefect(ctx context.Context, req *classifier.Request) error {
	if e.tracker == nil {
		return errNoTracker
	}
	summary := req.Summary
	if summary == "" {
		summary = "Automated test failure"
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Raised by replaybot on %s.\n", time.Now().Format("2006-01-02 15:04"))
	if req.Environment != "" {
		fmt.Fprintf(&desc, "Environment: %s\n", req.Environment)
	}
	if req.Record != "" {
		fmt.Fprintf(&desc, "Test record: %s\n", req.Record)
	}
	if req.Ticket != "" {
		fmt.Fprintf(&desc, "Related ticket: %s\n", req.Ticket)
	}

	key, err := e.tracker.Create(ctx, tracker.NewIssue{
		Project:     req.Project,
		Summary:     summary,
		Description: desc.String(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "→ Raised %s: %s\n", key, summary)

	if e.store != nil && req.Record != "" {
		e.attachLatestTrace(ctx, key, req.Record)
	}
	return nil
}

// attachLatestTrace streams the newest stored trace for a record onto
// a ticket. Attach failures only log; the issue is already created.
func (e *Engine) attachLatestTrace(ctx context.Context, ticket, record string) {
	obj, err := e.store.Latest(ctx, "traces/"+record)
	if err != nil {
		e.log.Warn("no stored trace to attach", "record", record, "error", err)
		return
	}
	rc, err := e.store.Get(ctx, obj.Key)
	if err != nil {
		e.log.Warn("trace attach skipped", "key", obj.Key, "error", err)
		return
	}
	defer rc.Close()
	if err := e.tracker.Attach(ctx, ticket, "trace.zip", rc); err != nil {
		e.log.Warn("trace attach failed", "ticket", ticket, "error", err)
		return
	}
	fmt.Fprintf(e.out, "→ Attached latest trace for %s\n", record)
}

// scrape maps a page's interactive elements and prints them as JSON
func (e *Engine) scrape(ctx context.Context, req *classifier.Request) error {
	fmt.Fprintf(e.out, "→ Scraping %s...\n", req.URL)
	snap, err := e.scrapeFn(ctx, req.URL)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	fmt.Fprintln(e.out, string(data))
	return nil
}

func (e *Engine) browserScrape(ctx context.Context, url string) (*scraper.Snapshot, error) {
	session, err := e.openSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return scraper.Scrape(session.Page(), e.log)
}
