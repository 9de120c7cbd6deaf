// Package notifier fans engine audit events out to webhook consumers
// (billing dashboards, support tooling) from the durable event stream.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"escrowd/pkg/bus"
	"escrowd/services/escrow"
)

const (
	sessionSubjects = "escrowd.session.*"
	paymentSubjects = "escrowd.payment.*"
)

// Dispatcher consumes engine events and delivers webhook notifications.
// Delivery is at-least-once; a small in-memory window of seen event ids
// absorbs redeliveries within one process lifetime.
type Dispatcher struct {
	bus        *bus.Bus
	webhookURL string
	httpClient *http.Client
	log        zerolog.Logger

	seenMu sync.Mutex
	seen   map[uuid.UUID]struct{}

	subsMu sync.Mutex
	subs   []io.Closer
}

// NewDispatcher creates a Dispatcher. The webhook URL may be empty, in
// which case events are only logged.
func NewDispatcher(b *bus.Bus, webhookURL string, log zerolog.Logger) (*Dispatcher, error) {
	if b == nil {
		return nil, errors.New("bus is required")
	}

	return &Dispatcher{
		bus:        b,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
		seen:       make(map[uuid.UUID]struct{}),
	}, nil
}

// Start registers durable NATS subscriptions and begins processing events.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d == nil {
		return errors.New("nil dispatcher")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	specs := []struct {
		subject string
		durable string
	}{
		{sessionSubjects, "notifier-sessions"},
		{paymentSubjects, "notifier-payments"},
	}

	for _, spec := range specs {
		closer, err := d.bus.Subscribe(ctx, spec.subject, spec.durable, d.handleMessage)
		if err != nil {
			d.Close()
			return err
		}
		d.subsMu.Lock()
		d.subs = append(d.subs, closer)
		d.subsMu.Unlock()
	}

	return nil
}

// Close tears down active subscriptions.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}

	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	var firstErr error
	for _, sub := range d.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.subs = nil
	return firstErr
}

func (d *Dispatcher) handleMessage(ctx context.Context, data []byte) error {
	var evt escrow.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		// Malformed payloads never become deliverable; drop instead of
		// cycling through redelivery.
		d.log.Error().Err(err).Msg("drop undecodable event")
		return nil
	}
	return d.handleEvent(ctx, evt)
}

func (d *Dispatcher) handleEvent(ctx context.Context, evt escrow.Event) error {
	if evt.ID == uuid.Nil {
		d.log.Error().Str("session_id", evt.SessionID).Msg("drop event without id")
		return nil
	}

	if d.markSeen(evt.ID) {
		return nil
	}

	d.log.Info().
		Str("event_id", evt.ID.String()).
		Str("session_id", evt.SessionID).
		Str("kind", string(evt.Kind)).
		Str("pathway", evt.Pathway).
		Uint64("amount", evt.Amount).
		Msg("event")

	if d.webhookURL == "" {
		return nil
	}

	if err := d.deliver(ctx, evt); err != nil {
		d.forget(evt.ID)
		return err
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, evt escrow.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Escrow-Event", string(evt.Kind))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// markSeen records the id and reports whether it was already present.
func (d *Dispatcher) markSeen(id uuid.UUID) bool {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	return false
}

func (d *Dispatcher) forget(id uuid.UUID) {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	delete(d.seen, id)
}
