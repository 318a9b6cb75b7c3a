// Package mail reads verification messages from an IMAP inbox so runs
// can follow confirmation links and one-time codes sent by the system
// under test.
package mail

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"

	"github.com/v0xg/replaybot/internal/logging"
)

// Options configures the inbox connection
type Options struct {
	// Server is the host:port of the IMAP endpoint, TLS only
	Server   string
	User     string
	Password string
	Logger   *slog.Logger
}

// Message is one fetched mail with its decoded bodies
type Message struct {
	From    string
	Subject string
	Date    time.Time
	Text    string
	HTML    string
}

// Inbox is an authenticated IMAP session
type Inbox struct {
	c   *client.Client
	log *slog.Logger
}

// Dial connects and logs into the inbox
func Dial(opts Options) (*Inbox, error) {
	if opts.Server == "" {
		return nil, fmt.Errorf("mail server required (set mail_server)")
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	c, err := client.DialTLS(opts.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Server, err)
	}
	if err := c.Login(opts.User, opts.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	log.Debug("inbox connected", "server", opts.Server, "user", opts.User)
	return &Inbox{c: c, log: log}, nil
}

// Recent fetches up to n of the newest INBOX messages, newest first.
// When fromDomain is set, messages from other senders are dropped.
func (i *Inbox) Recent(n int, fromDomain string) ([]Message, error) {
	mbox, err := i.c.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(n) {
		from = mbox.Messages - uint32(n) + 1
	}
	seq := new(imap.SeqSet)
	seq.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, n)
	done := make(chan error, 1)
	go func() {
		done <- i.c.Fetch(seq, items, ch)
	}()

	var out []Message
	for msg := range ch {
		m, err := decodeMessage(msg, section)
		if err != nil {
			i.log.Warn("skipping undecodable message", "seq", msg.SeqNum, "error", err)
			continue
		}
		if fromDomain != "" && !strings.HasSuffix(strings.ToLower(m.From), strings.ToLower(fromDomain)) {
			continue
		}
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	// The server hands messages out oldest first
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, nil
}

// Close logs out of the server
func (i *Inbox) Close() error {
	return i.c.Logout()
}

func decodeMessage(msg *imap.Message, section *imap.BodySectionName) (Message, error) {
	var m Message
	if env := msg.Envelope; env != nil {
		m.Subject = env.Subject
		m.Date = env.Date
		if len(env.From) > 0 {
			m.From = env.From[0].Address()
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return m, fmt.Errorf("message has no body")
	}
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return m, fmt.Errorf("parse message: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return m, fmt.Errorf("read message part: %w", err)
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, err := header.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return m, fmt.Errorf("read part body: %w", err)
		}
		switch ctype {
		case "text/plain":
			m.Text += string(body)
		case "text/html":
			m.HTML += string(body)
		}
	}
	return m, nil
}
