package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind is the processor event type string.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout.session.completed"
	EventSubscriptionCreated EventKind = "customer.subscription.created"
	EventSubscriptionUpdated EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
	EventPaymentSucceeded    EventKind = "invoice.payment_succeeded"
	EventPaymentFailed       EventKind = "invoice.payment_failed"
)

// Handled reports whether the engine reacts to events of this kind.
func (k EventKind) Handled() bool {
	switch k {
	case EventCheckoutCompleted,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventPaymentSucceeded,
		EventPaymentFailed:
		return true
	default:
		return false
	}
}

// Event is a verified, decoded processor event. Exactly one of Checkout,
// Subscription and Invoice is set, matching Kind.
type Event struct {
	ID           string
	Kind         EventKind
	Checkout     *CheckoutCompletion
	Subscription *Subscription
	Invoice      *InvoiceRef
}

// CheckoutCompletion carries the linkage of a completed checkout session.
type CheckoutCompletion struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	UserID         string
}

// InvoiceRef identifies an invoice and the subscription it bills.
type InvoiceRef struct {
	ID             string
	CustomerID     string
	SubscriptionID string
}

// DecodeEvent decodes the data object of a handled event kind. Errors wrap
// ErrMalformedEvent.
func DecodeEvent(id string, kind EventKind, raw json.RawMessage) (*Event, error) {
	if !kind.Handled() {
		return nil, fmt.Errorf("%w: unsupported event type %q", ErrMalformedEvent, kind)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: event %s has no data object", ErrMalformedEvent, id)
	}

	ev := &Event{ID: id, Kind: kind}
	switch kind {
	case EventCheckoutCompleted:
		var cs wireCheckoutSession
		if err := json.Unmarshal(trimmed, &cs); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrMalformedEvent, err)
		}
		if strings.TrimSpace(cs.ID) == "" {
			return nil, fmt.Errorf("%w: checkout session without id", ErrMalformedEvent)
		}
		ev.Checkout = cs.completion()
	case EventPaymentSucceeded, EventPaymentFailed:
		var inv wireInvoice
		if err := json.Unmarshal(trimmed, &inv); err != nil {
			return nil, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
		}
		if strings.TrimSpace(inv.ID) == "" {
			return nil, fmt.Errorf("%w: invoice without id", ErrMalformedEvent)
		}
		ev.Invoice = inv.ref()
	default:
		var sub wireSubscription
		if err := json.Unmarshal(trimmed, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
		}
		if strings.TrimSpace(sub.ID) == "" {
			return nil, fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
		}
		if strings.TrimSpace(sub.Status) == "" && kind != EventSubscriptionDeleted {
			return nil, fmt.Errorf("%w: subscription %s without status", ErrMalformedEvent, sub.ID)
		}
		s := sub.subscription()
		ev.Subscription = &s
	}
	return ev, nil
}

// expandableID accepts either an object id or the expanded object itself.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(strings.TrimSpace(obj.ID))
	return nil
}

type wireSubscription struct {
	ID                string       `json:"id"`
	Customer          expandableID `json:"customer"`
	Status            string       `json:"status"`
	CancelAtPeriodEnd bool         `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64        `json:"current_period_end"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (w wireSubscription) subscription() Subscription {
	sub := Subscription{
		ID:                strings.TrimSpace(w.ID),
		CustomerID:        string(w.Customer),
		Status:            strings.TrimSpace(w.Status),
		CurrentPeriodEnd:  w.CurrentPeriodEnd,
		CancelAtPeriodEnd: w.CancelAtPeriodEnd,
		Metadata:          w.Metadata,
	}
	if len(w.Items.Data) > 0 {
		first := w.Items.Data[0]
		sub.PriceID = strings.TrimSpace(first.Price.ID)
		if sub.CurrentPeriodEnd == 0 {
			sub.CurrentPeriodEnd = first.CurrentPeriodEnd
		}
	}
	return sub
}

type wireCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func (w wireCheckoutSession) completion() *CheckoutCompletion {
	userID := strings.TrimSpace(w.Metadata[MetadataUserIDKey])
	if userID == "" {
		userID = strings.TrimSpace(w.ClientReferenceID)
	}
	return &CheckoutCompletion{
		SessionID:      strings.TrimSpace(w.ID),
		CustomerID:     string(w.Customer),
		SubscriptionID: string(w.Subscription),
		UserID:         userID,
	}
}

type wireInvoice struct {
	ID           string       `json:"id"`
	Customer     expandableID `json:"customer"`
	Subscription expandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (w wireInvoice) ref() *InvoiceRef {
	subID := string(w.Subscription)
	if subID == "" && w.Parent != nil && w.Parent.SubscriptionDetails != nil {
		subID = string(w.Parent.SubscriptionDetails.Subscription)
	}
	return &InvoiceRef{
		ID:             strings.TrimSpace(w.ID),
		CustomerID:     string(w.Customer),
		SubscriptionID: subID,
	}
}
