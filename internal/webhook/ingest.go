// Package webhook accepts tracker webhook deliveries, deduplicates them
// by event id, persists them durably, and processes them with a worker
// pool. Processing is idempotent and unordered; handlers apply
// last-writer-wins on fields.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/scullers68/sprint-reports/internal/storage"
	"github.com/scullers68/sprint-reports/internal/types"
)

// Result classifies an ingest attempt.
type Result int

const (
	Accepted Result = iota
	Duplicate
	Rejected
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// EventIDHeader is the idempotency key header. Falls back to the body's
// event_id field when absent.
const EventIDHeader = "X-Event-ID"

// ViolationSink records signature failures. Satisfied by *audit.Log.
type ViolationSink interface {
	Violation(ctx context.Context, sourceIP, description string, metadata map[string]string)
}

// Ingestor is the webhook ingress: verify, persist, then queue. Queue
// publishes never block; a saturated queue leaves the durable pending row
// for the periodic scanner.
type Ingestor struct {
	store  storage.Storage
	queue  chan int64
	secret []byte
	sink   ViolationSink
}

// NewIngestor creates an ingestor publishing to the given queue. An empty
// secret disables signature checking.
func NewIngestor(store storage.Storage, queue chan int64, secret string, sink ViolationSink) *Ingestor {
	return &Ingestor{
		store:  store,
		queue:  queue,
		secret: []byte(secret),
		sink:   sink,
	}
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body in constant
// time. Always true when no secret is configured.
func (i *Ingestor) VerifySignature(body []byte, signature string) bool {
	if len(i.secret) == 0 {
		return true
	}
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Ingest persists one event. Duplicate event ids are accepted
// idempotently without a new row.
func (i *Ingestor) Ingest(ctx context.Context, eventID, eventType string, payload []byte) (Result, error) {
	if eventID == "" {
		return Rejected, &types.ValidationError{Field: "event_id", Reason: "required"}
	}
	event := &types.WebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Payload:   string(payload),
		Status:    types.ProcessingPending,
	}
	id, err := i.store.InsertWebhookEvent(ctx, event)
	if errors.Is(err, storage.ErrDuplicate) {
		return Duplicate, nil
	}
	if err != nil {
		return Rejected, fmt.Errorf("persist webhook event: %w", err)
	}

	// Non-blocking publish; the scanner picks up anything dropped here.
	select {
	case i.queue <- id:
	default:
	}
	return Accepted, nil
}

// envelope is the tracker's webhook delivery shape.
type envelope struct {
	EventID      string          `json:"event_id,omitempty"`
	WebhookEvent string          `json:"webhookEvent"`
	Timestamp    int64           `json:"timestamp,omitempty"`
	Issue        json.RawMessage `json:"issue,omitempty"`
	Sprint       json.RawMessage `json:"sprint,omitempty"`
	Changelog    json.RawMessage `json:"changelog,omitempty"`
}

// Handler serves the webhook ingress endpoint: 202 on acceptance, 200 on
// duplicate, 400 on signature or envelope failure.
func (i *Ingestor) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		if !i.VerifySignature(body, r.Header.Get(SignatureHeader)) {
			if i.sink != nil {
				i.sink.Violation(r.Context(), r.RemoteAddr,
					"webhook signature verification failed",
					map[string]string{"path": r.URL.Path})
			}
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		eventID := r.Header.Get(EventIDHeader)
		if eventID == "" {
			eventID = env.EventID
		}

		result, err := i.Ingest(r.Context(), eventID, env.WebhookEvent, body)
		switch result {
		case Accepted:
			w.WriteHeader(http.StatusAccepted)
		case Duplicate:
			w.WriteHeader(http.StatusOK)
		default:
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "rejected", http.StatusBadRequest)
		}
	}
}
