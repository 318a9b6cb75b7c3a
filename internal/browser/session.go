// Package browser owns the live browser session: launching, viewport
// setup, and the page operations the interpreter drives.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/v0xg/replaybot/internal/logging"
)

// DefaultActionTimeout bounds each page operation.
const DefaultActionTimeout = 30 * time.Second

// Defaults for the network-idle wait policy.
const (
	DefaultIdleWindow = 500 * time.Millisecond
	DefaultIdleBound  = 5 * time.Second
)

// Options configures a session.
type Options struct {
	Headless      bool
	Profile       ViewportProfile // zero value means DefaultProfile
	ActionTimeout time.Duration   // zero means DefaultActionTimeout
	Logger        *slog.Logger
}

// Capturer receives page captures after each successful operation.
// Implemented by the trace recorder.
type Capturer interface {
	Navigation(url string)
	Snapshot(html string)
	Screenshot(png []byte)
	Screenshots() bool
}

// Session wraps one browser and one page for the duration of a run.
type Session struct {
	id      string
	browser *rod.Browser
	page    *rod.Page
	timeout time.Duration
	log     *slog.Logger
	cap     Capturer
}

// Open launches a browser and prepares a blank page with the requested
// viewport.
func Open(opts Options) (*Session, error) {
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.Profile == (ViewportProfile{}) {
		opts.Profile = DefaultProfile
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	path, _ := launcher.LookPath()
	l := launcher.New().Bin(path).Headless(opts.Headless)

	u := l.MustLaunch()
	b := rod.New().ControlURL(u).MustConnect()

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	w, h := opts.Profile.Width, opts.Profile.Height
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		ScreenWidth:       &w,
		ScreenHeight:      &h,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		b.Close()
		return nil, fmt.Errorf("set viewport %s: %w", opts.Profile.Name, err)
	}

	log.Debug("session opened", "viewport", opts.Profile.Name, "headless", opts.Headless)

	return &Session{
		id:      uuid.NewString(),
		browser: b,
		page:    page,
		timeout: opts.ActionTimeout,
		log:     log,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Page returns the underlying Rod page.
func (s *Session) Page() *rod.Page { return s.page }

// AttachRecorder starts feeding page captures to c after each successful
// operation.
func (s *Session) AttachRecorder(c Capturer) { s.cap = c }

// NetworkIdle is a dispatch wait policy that settles once the session's
// network has been quiet for the idle window. The whole wait is bounded
// so persistent connections (websockets, polling) cannot hang a step.
type NetworkIdle struct {
	session *Session
	idle    time.Duration
	limit   time.Duration
}

// IdleWait builds a NetworkIdle policy over this session's page.
func (s *Session) IdleWait(idle, limit time.Duration) NetworkIdle {
	return NetworkIdle{session: s, idle: idle, limit: limit}
}

func (w NetworkIdle) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.session.page.Context(ctx).Timeout(w.limit).WaitRequestIdle(w.idle, nil, nil, nil)()
	return ctx.Err()
}

// Navigate loads url and waits for the page load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.timeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	if s.cap != nil {
		s.cap.Navigation(url)
	}
	s.capture()
	return nil
}

// Fill replaces the content of the element matching selector with value.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	p := s.page.Context(ctx).Timeout(s.timeout)
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("locate %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	s.capture()
	return nil
}

// Click clicks the element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	p := s.page.Context(ctx).Timeout(s.timeout)
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("locate %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	s.capture()
	return nil
}

// HTML returns the page's current DOM serialized to HTML.
func (s *Session) HTML() (string, error) {
	return s.page.HTML()
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot() ([]byte, error) {
	quality := 90
	return s.page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatPng,
		Quality: &quality,
	})
}

func (s *Session) capture() {
	if s.cap == nil {
		return
	}
	html, err := s.page.HTML()
	if err != nil {
		s.log.Warn("snapshot capture failed", "error", err)
	} else {
		s.cap.Snapshot(html)
	}
	if s.cap.Screenshots() {
		png, err := s.Screenshot()
		if err != nil {
			s.log.Warn("screenshot capture failed", "error", err)
			return
		}
		s.cap.Screenshot(png)
	}
}

// Close releases the page and browser. Safe to call once the session is
// no longer needed, on both success and failure paths.
func (s *Session) Close() {
	if s.page != nil {
		s.page.Close()
	}
	if s.browser != nil {
		s.browser.Close()
	}
	s.log.Debug("session closed")
}
