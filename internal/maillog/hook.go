// Package maillog mails warning and error logs to the operators through
// the local MTA. Records are batched and mails are rate limited.
package maillog

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"spamfightbot/internal/constants"

	"github.com/sirupsen/logrus"
)

// Sender delivers one RFC 5322 message
type Sender interface {
	Send(from string, to []string, msg []byte) error
}

// SMTPSender hands mails to an SMTP server without authentication. The
// whole exchange is bounded by Timeout.
type SMTPSender struct {
	Addr    string
	Timeout time.Duration
}

func (s SMTPSender) Send(from string, to []string, msg []byte) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultMailTimeoutSec * time.Second
	}

	conn, err := net.DialTimeout("tcp", s.Addr, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.Addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return err
	}

	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		host = s.Addr
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := c.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// Config holds the hook settings
type Config struct {
	From     string
	To       []string
	Tag      string
	MinGap   time.Duration
	MaxBatch int
}

type record struct {
	message string
	text    string
}

// Hook is a logrus hook for WARN and above. Every record joins a ring of
// the latest MaxBatch records; the ring is mailed when MinGap has passed
// since the last successful mail and cleared only once the mail went out.
type Hook struct {
	mu        sync.Mutex
	config    Config
	sender    Sender
	formatter logrus.Formatter
	records   []record
	lastMail  time.Time
	now       func() time.Time
	sending   bool
	inflight  sync.WaitGroup
}

// Option configures a Hook
type Option func(*Hook)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(h *Hook) {
		h.now = now
	}
}

func NewHook(config Config, sender Sender, opts ...Option) *Hook {
	if config.MaxBatch <= 0 {
		config.MaxBatch = constants.DefaultMailMaxBatch
	}
	if config.Tag == "" {
		config.Tag = constants.DefaultMailTag
	}
	if config.From == "" {
		config.From = constants.DefaultMailFrom
	}

	h := &Hook{
		config: config,
		sender: sender,
		formatter: &logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    true,
			DisableQuote:     true,
			QuoteEmptyFields: true,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	formatted, err := h.formatter.Format(entry)
	if err != nil {
		return fmt.Errorf("failed to format log record: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record{message: entry.Message, text: string(formatted)})
	h.trim()

	now := h.now()
	if h.sending || (!h.lastMail.IsZero() && !now.After(h.lastMail.Add(h.config.MinGap))) {
		return nil
	}

	batch := slices.Clone(h.records)
	h.records = h.records[:0]
	h.sending = true
	h.inflight.Add(1)
	go h.deliver(batch, now)
	return nil
}

func (h *Hook) deliver(batch []record, now time.Time) {
	defer h.inflight.Done()

	subject, body := compose(h.config.Tag, batch)
	err := h.sender.Send(h.config.From, h.config.To, buildMail(h.config.From, h.config.To, subject, body, now))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sending = false
	if err != nil {
		// logrus is not usable from inside its own hook
		fmt.Fprintf(os.Stderr, "failed to mail error log: %v\n", err)
		h.records = append(batch, h.records...)
		h.trim()
		return
	}
	h.lastMail = now
}

// Flush waits for the mail in flight, if any
func (h *Hook) Flush() {
	h.inflight.Wait()
}

func (h *Hook) trim() {
	if len(h.records) > h.config.MaxBatch {
		h.records = h.records[len(h.records)-h.config.MaxBatch:]
	}
}

// Pending returns how many records wait for the next mail
func (h *Hook) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func compose(tag string, records []record) (subject, body string) {
	if len(records) == 1 {
		subject = "An error occurred: " + records[0].message
	} else {
		subject = fmt.Sprintf("%d errors occurred", len(records))
	}

	var b strings.Builder
	for _, r := range records {
		b.WriteString(strings.TrimRight(r.text, "\n"))
		b.WriteString("\n")
	}
	return fmt.Sprintf("[%s] %s", tag, subject), b.String()
}

func buildMail(from string, to []string, subject, body string, date time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}

// ParseRecipients splits a ';' separated address list
func ParseRecipients(list string) []string {
	var out []string
	for _, addr := range strings.Split(list, ";") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
