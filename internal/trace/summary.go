package trace

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Summary is the digest of an archived run, rebuilt from trace.jsonl
type Summary struct {
	SessionID   string
	Started     time.Time
	Finished    time.Time
	Steps       []Event
	Navigations []string
	Snapshots   int
	Screenshots int
	Sources     []string
	Failed      bool
}

// ReadSummary opens a trace archive and digests its event log
func ReadSummary(zipPath string) (*Summary, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open trace archive: %w", err)
	}
	defer zr.Close()

	var log *zip.File
	for _, f := range zr.File {
		if f.Name == "trace.jsonl" {
			log = f
			break
		}
	}
	if log == nil {
		return nil, fmt.Errorf("archive %s has no trace.jsonl", zipPath)
	}

	rc, err := log.Open()
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	defer rc.Close()

	sum := &Summary{}
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("decode trace event: %w", err)
		}
		switch ev.Type {
		case EventStart:
			sum.SessionID = ev.SessionID
			sum.Started = ev.Time
		case EventStop:
			sum.Finished = ev.Time
		case EventStep:
			sum.Steps = append(sum.Steps, ev)
			if ev.Error != "" {
				sum.Failed = true
			}
		case EventNavigation:
			sum.Navigations = append(sum.Navigations, ev.URL)
		case EventSnapshot:
			sum.Snapshots++
		case EventScreenshot:
			sum.Screenshots++
		case EventSource:
			sum.Sources = append(sum.Sources, ev.File)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace log: %w", err)
	}
	return sum, nil
}

// String renders the summary as a step-per-line report
func (s *Summary) String() string {
	var b strings.Builder
	status := "ok"
	if s.Failed {
		status = "failed"
	}
	fmt.Fprintf(&b, "session %s: %s\n", s.SessionID, status)
	if !s.Started.IsZero() && !s.Finished.IsZero() {
		fmt.Fprintf(&b, "duration: %s\n", s.Finished.Sub(s.Started).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "steps: %d, navigations: %d, snapshots: %d, screenshots: %d\n",
		len(s.Steps), len(s.Navigations), s.Snapshots, s.Screenshots)
	for _, ev := range s.Steps {
		mark := "✓"
		if ev.Error != "" {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s %3d %-13s %s", mark, ev.Step, ev.Action, ev.Target)
		if ev.Error != "" {
			fmt.Fprintf(&b, "  (%s)", ev.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
