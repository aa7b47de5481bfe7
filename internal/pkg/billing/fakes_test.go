package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"gorm.io/gorm"
)

// memRepo is an in-memory Repository with the same merge semantics as the
// gorm implementation.
type memRepo struct {
	mu          sync.Mutex
	snapshots   map[string]models.BillingSnapshot
	events      map[string]*models.BillingWebhookEvent
	nextEventID uint
	writes      int
	mergeErr    error
}

func newMemRepo() *memRepo {
	return &memRepo{
		snapshots: make(map[string]models.BillingSnapshot),
		events:    make(map[string]*models.BillingWebhookEvent),
	}
}

func (r *memRepo) GetSnapshot(_ context.Context, userID string) (*models.BillingSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &snap, nil
}

func (r *memRepo) MergeSnapshot(_ context.Context, userID string, update SnapshotUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mergeErr != nil {
		return r.mergeErr
	}
	snap, ok := r.snapshots[userID]
	if !ok {
		snap = *models.NewEmptyBillingSnapshot(userID)
	}
	update.ApplyTo(&snap)
	r.snapshots[userID] = snap
	r.writes++
	return nil
}

func (r *memRepo) RecordWebhookEvent(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	r.nextEventID++
	stored := *event
	stored.ID = r.nextEventID
	r.events[key] = &stored
	cp := stored
	return true, &cp, nil
}

func (r *memRepo) MarkWebhookProcessed(_ context.Context, id uint, userID, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			if userID != "" {
				e.UserID = userID
			}
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memRepo) snapshot(userID string) (models.BillingSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[userID]
	return snap, ok
}

func (r *memRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *memRepo) event(eventID string) *models.BillingWebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[models.BillingProviderStripe+"/"+eventID]; ok {
		cp := *e
		return &cp
	}
	return nil
}

var errProcessorDown = errors.New("processor unavailable")

type fakeProcessor struct {
	mu sync.Mutex

	subs     map[string]Subscription
	lists    map[string][]Subscription
	invoices map[string]string

	getErr      error
	listErr     error
	updateErr   error
	customerErr error
	checkoutErr error
	portalErr   error

	metadataUpdates map[string]map[string]string
	customers       []CustomerRequest
	checkouts       []CheckoutSessionRequest
	listLimits      []int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		subs:            make(map[string]Subscription),
		lists:           make(map[string][]Subscription),
		invoices:        make(map[string]string),
		metadataUpdates: make(map[string]map[string]string),
	}
}

func (p *fakeProcessor) GetSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	sub, ok := p.subs[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, ErrNotFound)
	}
	return &sub, nil
}

func (p *fakeProcessor) ListSubscriptions(_ context.Context, customerID string, limit int) ([]Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listLimits = append(p.listLimits, limit)
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]Subscription(nil), p.lists[customerID]...), nil
}

func (p *fakeProcessor) UpdateSubscriptionMetadata(_ context.Context, subscriptionID string, metadata map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	p.metadataUpdates[subscriptionID] = metadata
	return nil
}

func (p *fakeProcessor) GetInvoiceSubscriptionID(_ context.Context, invoiceID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return "", p.getErr
	}
	return p.invoices[invoiceID], nil
}

func (p *fakeProcessor) CreateCustomer(_ context.Context, req CustomerRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.customerErr != nil {
		return "", p.customerErr
	}
	p.customers = append(p.customers, req)
	return fmt.Sprintf("cus_%d", len(p.customers)), nil
}

func (p *fakeProcessor) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checkoutErr != nil {
		return nil, p.checkoutErr
	}
	p.checkouts = append(p.checkouts, req)
	id := fmt.Sprintf("cs_test_%d", len(p.checkouts))
	return &CheckoutSession{ID: id, URL: "https://checkout.example.test/" + id}, nil
}

func (p *fakeProcessor) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	if p.portalErr != nil {
		return "", p.portalErr
	}
	return "https://portal.example.test/" + customerID, nil
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestReconciler(repo Repository, processor Processor) *Reconciler {
	r := NewReconciler(repo, processor, testCatalog())
	r.now = func() time.Time { return fixedNow }
	return r
}

func activeSub(id, userID, priceID string) Subscription {
	sub := Subscription{
		ID:               id,
		CustomerID:       "cus_1",
		Status:           "active",
		PriceID:          priceID,
		CurrentPeriodEnd: 1774000000,
	}
	if userID != "" {
		sub.Metadata = map[string]string{MetadataUserIDKey: userID}
	}
	return sub
}
