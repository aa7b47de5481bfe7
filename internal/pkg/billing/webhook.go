package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Ack is the acknowledgement returned for every verified delivery.
type Ack struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Dispatcher verifies, journals and routes processor webhook deliveries.
type Dispatcher struct {
	secret     string
	repo       Repository
	reconciler *Reconciler
}

// NewDispatcher creates a dispatcher verifying deliveries with secret.
func NewDispatcher(secret string, repo Repository, reconciler *Reconciler) *Dispatcher {
	return &Dispatcher{
		secret:     strings.TrimSpace(secret),
		repo:       repo,
		reconciler: reconciler,
	}
}

// Handle processes one delivery. The only error it returns wraps
// ErrInvalidSignature; every verified event is acknowledged, whatever
// happens while applying it.
func (d *Dispatcher) Handle(ctx context.Context, rawBody []byte, signatureHeader string) (Ack, error) {
	if d.secret == "" || strings.TrimSpace(signatureHeader) == "" {
		webhookRejectedTotal.Inc()
		return Ack{}, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(rawBody, signatureHeader, d.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		webhookRejectedTotal.Inc()
		return Ack{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	kind := EventKind(event.Type)
	ack := Ack{Received: true, EventID: event.ID, EventType: string(kind)}
	if !kind.Handled() {
		log.Infof("[Webhook] Ignoring unhandled event %s (%s)", event.ID, kind)
		webhookEventsTotal.WithLabelValues(string(kind), "ignored").Inc()
		ack.Ignored = true
		return ack, nil
	}

	journal, proceed := d.journal(ctx, event.ID, string(kind), rawBody)
	if !proceed {
		log.Infof("[Webhook] Event %s (%s) already applied, skipping", event.ID, kind)
		webhookEventsTotal.WithLabelValues(string(kind), "duplicate").Inc()
		ack.Duplicate = true
		return ack, nil
	}

	var raw []byte
	if event.Data != nil {
		raw = event.Data.Raw
	}
	decoded, err := DecodeEvent(event.ID, kind, raw)
	if err != nil {
		log.Errorf("[Webhook] Dropping event %s (%s): %v", event.ID, kind, err)
		webhookEventsTotal.WithLabelValues(string(kind), "malformed").Inc()
		d.finish(ctx, journal, "", err)
		ack.Ignored = true
		return ack, nil
	}

	userID, err := d.reconciler.HandleEvent(ctx, decoded)
	switch {
	case err == nil:
		webhookEventsTotal.WithLabelValues(string(kind), "applied").Inc()
	case errors.Is(err, ErrMissingUserMetadata):
		webhookEventsTotal.WithLabelValues(string(kind), "unattributed").Inc()
	default:
		log.Errorf("[Webhook] Failed to apply event %s (%s) for user %q: %v", event.ID, kind, userID, err)
		webhookEventsTotal.WithLabelValues(string(kind), "failed").Inc()
	}
	d.finish(ctx, journal, userID, err)
	return ack, nil
}

// journal records the delivery and reports whether it still has to be
// applied. Journal failures never block processing.
func (d *Dispatcher) journal(ctx context.Context, eventID, eventType string, payload []byte) (*models.BillingWebhookEvent, bool) {
	if d.repo == nil || eventID == "" {
		return nil, true
	}
	created, stored, err := d.repo.RecordWebhookEvent(ctx, &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		log.Warnf("[Webhook] Could not journal event %s: %v", eventID, err)
		return nil, true
	}
	if !created && stored.Applied() {
		return stored, false
	}
	return stored, true
}

func (d *Dispatcher) finish(ctx context.Context, journal *models.BillingWebhookEvent, userID string, procErr error) {
	if journal == nil {
		return
	}
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	if err := d.repo.MarkWebhookProcessed(ctx, journal.ID, userID, msg); err != nil {
		log.Warnf("[Webhook] Could not mark event %s processed: %v", journal.ProviderEventID, err)
	}
}
