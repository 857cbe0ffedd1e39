// Package webhook posts signed event notifications to an external URL.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

// Event types emitted by the API.
const (
	ClientCreated      = "client.created"
	OpportunityCreated = "opportunity.created"
	FlowCreated        = "flow.created"
	FlowSettled        = "flow.settled"
	AppointmentCreated = "appointment.created"
)

// Event is the POST body of a notification.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of "ts.body".
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatch performs a single synchronous POST of ev to url.
// Returns nil on a 2xx status.
func Dispatch(ctx context.Context, client *http.Client, url, secret string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "jus-webhook/1")
	req.Header.Set("X-Jus-Event", ev.Type)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Jus-Timestamp", ts)
	if secret != "" {
		req.Header.Set("X-Jus-Signature", "sha256="+Sign(secret, ts, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Unrecoverable(err)
		}
		return err
	}
	return nil
}

// Options tunes a Notifier.
type Options struct {
	QueueSize int
	Attempts  uint
	Delay     time.Duration
	Timeout   time.Duration
}

// Notifier delivers events in the background. A nil *Notifier is valid
// and drops everything, so callers need not check whether webhooks are
// configured.
type Notifier struct {
	url    string
	secret string
	opts   Options
	client *http.Client

	queue chan Event
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
	now   func() time.Time
}

// NewNotifier returns nil when url is empty.
func NewNotifier(url, secret string, opts Options) *Notifier {
	if url == "" {
		return nil
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Notifier{
		url:    url,
		secret: secret,
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		queue:  make(chan Event, opts.QueueSize),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Start runs the delivery worker until ctx is canceled or Close is called.
func (n *Notifier) Start(ctx context.Context) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("webhook worker panic", "panic", r)
			}
		}()
		for {
			select {
			case ev := <-n.queue:
				n.deliver(ctx, ev)
			case <-n.done:
				n.drain(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (n *Notifier) drain(ctx context.Context) {
	for {
		select {
		case ev := <-n.queue:
			n.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev Event) {
	err := retry.Do(
		func() error { return Dispatch(ctx, n.client, n.url, n.secret, ev) },
		retry.Context(ctx),
		retry.Attempts(n.opts.Attempts),
		retry.Delay(n.opts.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		slog.Warn("webhook delivery failed", "event", ev.Type, "id", ev.ID, "err", err)
		return
	}
	slog.Debug("webhook delivered", "event", ev.Type, "id", ev.ID)
}

// Notify queues an event without blocking. Events are dropped when the
// queue is full or the notifier is closed.
func (n *Notifier) Notify(eventType string, data any) {
	if n == nil {
		return
	}
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: n.now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.queue <- ev:
	default:
		slog.Warn("webhook queue full, dropping event", "event", eventType)
	}
}

// Close stops accepting events, delivers what is queued and waits for the
// worker to exit.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.once.Do(func() { close(n.done) })
	n.wg.Wait()
}
