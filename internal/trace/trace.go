// Package trace records a browser run into a portable zip artifact.
// The archive holds an event log (trace.jsonl), the HTML snapshot taken
// after every page-changing action, the source material the run was
// built from, and optional screenshots.
package trace

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/v0xg/replaybot/internal/logging"
)

// Event types written to trace.jsonl
const (
	EventStart      = "start"
	EventSource     = "source"
	EventNavigation = "navigation"
	EventStep       = "step"
	EventSnapshot   = "snapshot"
	EventScreenshot = "screenshot"
	EventStop       = "stop"
)

// ArchiveName is the file written into the run directory on Stop
const ArchiveName = "trace.zip"

// Event is one line of the trace log
type Event struct {
	Seq       int       `json:"seq"`
	Time      time.Time `json:"time"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Step      int       `json:"step,omitempty"`
	Key       string    `json:"key,omitempty"`
	Action    string    `json:"action,omitempty"`
	Target    string    `json:"target,omitempty"`
	URL       string    `json:"url,omitempty"`
	File      string    `json:"file,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Options configures a Recorder
type Options struct {
	// Dir is the run directory the archive is written into
	Dir string
	// Screenshots enables PNG capture alongside HTML snapshots
	Screenshots bool
	Logger      *slog.Logger
}

// Recorder accumulates a run's events and captures in memory and
// flushes them to a zip archive on Stop. It is safe for concurrent use.
type Recorder struct {
	dir         string
	screenshots bool
	log         *slog.Logger

	mu      sync.Mutex
	events  []Event
	snaps   [][]byte
	shots   [][]byte
	sources map[string][]byte
	stopped bool
	zipPath string
}

// NewRecorder creates a recorder that will write its archive into dir
func NewRecorder(opts Options) *Recorder {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	return &Recorder{
		dir:         dir,
		screenshots: opts.Screenshots,
		log:         log,
		sources:     map[string][]byte{},
	}
}

// Start marks the beginning of a recorded session
func (r *Recorder) Start(sessionID string) {
	r.append(Event{Type: EventStart, SessionID: sessionID})
	r.log.Debug("trace started", "session", sessionID, "dir", r.dir)
}

// SetSource stores a source document under sources/<name> in the archive
func (r *Recorder) SetSource(name string, data []byte) {
	r.mu.Lock()
	r.sources[name] = append([]byte(nil), data...)
	r.mu.Unlock()
	r.append(Event{Type: EventSource, File: "sources/" + name})
}

// Navigation records a page navigation
func (r *Recorder) Navigation(url string) {
	r.append(Event{Type: EventNavigation, URL: url})
}

// RecordStep records the outcome of one interpreted instruction
func (r *Recorder) RecordStep(step int, key, action, target string, err error) {
	ev := Event{Type: EventStep, Step: step, Key: key, Action: action, Target: target}
	if err != nil {
		ev.Error = err.Error()
	}
	r.append(ev)
}

// Snapshot stores a full-page HTML capture
func (r *Recorder) Snapshot(html string) {
	r.mu.Lock()
	r.snaps = append(r.snaps, []byte(html))
	n := len(r.snaps)
	r.mu.Unlock()
	r.append(Event{Type: EventSnapshot, File: fmt.Sprintf("snapshots/%03d.html", n)})
}

// Screenshot stores a PNG capture. Calls are dropped unless screenshot
// capture was enabled in Options.
func (r *Recorder) Screenshot(png []byte) {
	if !r.screenshots {
		return
	}
	r.mu.Lock()
	r.shots = append(r.shots, append([]byte(nil), png...))
	n := len(r.shots)
	r.mu.Unlock()
	r.append(Event{Type: EventScreenshot, File: fmt.Sprintf("screenshots/%03d.png", n)})
}

// Screenshots reports whether PNG capture is enabled
func (r *Recorder) Screenshots() bool {
	return r.screenshots
}

// Stop closes the recording and writes the archive. It always runs to
// completion once, even after a failed run; repeated calls return the
// same archive path.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if r.stopped {
		path := r.zipPath
		r.mu.Unlock()
		return path, nil
	}
	r.stopped = true
	r.events = append(r.events, Event{Seq: len(r.events) + 1, Time: time.Now(), Type: EventStop})
	r.mu.Unlock()

	path := filepath.Join(r.dir, ArchiveName)
	if err := r.writeArchive(path); err != nil {
		return "", fmt.Errorf("write trace archive: %w", err)
	}

	r.mu.Lock()
	r.zipPath = path
	r.mu.Unlock()

	r.log.Debug("trace archived", "path", path, "events", len(r.events))
	return path, nil
}

func (r *Recorder) append(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	ev.Seq = len(r.events) + 1
	ev.Time = time.Now()
	r.events = append(r.events, ev)
}

func (r *Recorder) writeArchive(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	w, err := zw.Create("trace.jsonl")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, ev := range r.events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}

	for i, snap := range r.snaps {
		w, err := zw.Create(fmt.Sprintf("snapshots/%03d.html", i+1))
		if err != nil {
			return err
		}
		if _, err := w.Write(snap); err != nil {
			return err
		}
	}

	for i, shot := range r.shots {
		w, err := zw.Create(fmt.Sprintf("screenshots/%03d.png", i+1))
		if err != nil {
			return err
		}
		if _, err := w.Write(shot); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create("sources/" + name)
		if err != nil {
			return err
		}
		if _, err := w.Write(r.sources[name]); err != nil {
			return err
		}
	}

	return zw.Close()
}
