package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mbd888/agentshield/internal/metrics"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
	queueSize      = 256
)

// delivery is one pending webhook POST.
type delivery struct {
	sub     *Subscription
	event   string
	payload []byte
	attempt int
}

// Dispatcher delivers event payloads to subscriber URLs on a worker pool.
// Deliveries are signed with the subscription secret and retried with
// backoff on failure.
type Dispatcher struct {
	store  Store
	client *http.Client
	logger *slog.Logger

	queue chan delivery
	done  chan struct{}
}

// NewDispatcher creates a dispatcher with the given worker count and starts
// its workers.
func NewDispatcher(store Store, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		store:  store,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger,
		queue:  make(chan delivery, queueSize),
		done:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Stop terminates the workers. Deliveries still queued or waiting on a retry
// are discarded.
func (d *Dispatcher) Stop() {
	close(d.done)
}

// Dispatch fans an event payload out to every matching active subscription.
// It never blocks: when the queue is full the delivery is dropped and
// counted.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload any) {
	subs, err := d.store.ListActive(ctx)
	if err != nil {
		d.logger.Error("webhook subscription lookup failed", "error", err)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("webhook payload marshal failed", "error", err)
		return
	}

	for _, sub := range subs {
		if !sub.Matches(eventType) {
			continue
		}
		select {
		case d.queue <- delivery{sub: sub, event: eventType, payload: body}:
		default:
			metrics.WebhookDeliveriesTotal.WithLabelValues("dropped").Inc()
			d.logger.Warn("webhook queue full, delivery dropped",
				"subscription_id", sub.ID, "event", eventType)
		}
	}
}

func (d *Dispatcher) worker() {
	for {
		select {
		case <-d.done:
			return
		case del := <-d.queue:
			d.deliver(del)
		}
	}
}

func (d *Dispatcher) deliver(del delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	now := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, del.sub.URL, bytes.NewReader(del.payload))
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		d.logger.Error("webhook request build failed", "subscription_id", del.sub.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-AgentShield-Event", del.event)
	req.Header.Set("X-AgentShield-Timestamp", now)
	req.Header.Set("X-AgentShield-Signature", Sign(del.sub.Secret, now, del.payload))

	resp, err := d.client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
			return
		}
	}

	del.attempt++
	if del.attempt >= maxAttempts {
		metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		d.logger.Warn("webhook delivery failed permanently",
			"subscription_id", del.sub.ID, "event", del.event, "attempts", del.attempt)
		return
	}

	// Linear backoff before requeueing.
	go func(del delivery) {
		select {
		case <-d.done:
		case <-time.After(time.Duration(del.attempt) * 2 * time.Second):
			select {
			case d.queue <- del:
			default:
				metrics.WebhookDeliveriesTotal.WithLabelValues("dropped").Inc()
			}
		}
	}(del)
}

// Sign computes the delivery signature: hex HMAC-SHA256 of "timestamp.body"
// keyed with the subscription secret.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
