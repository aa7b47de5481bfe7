package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// customerKeyNamespace scopes the idempotency keys of customer creation.
var customerKeyNamespace = uuid.MustParse("6f1c2a3e-8d4b-4e59-9a7c-2b0d5e8f1a34")

// CheckoutService starts hosted checkout and billing portal sessions. It only
// ever writes the customer linkage of a snapshot.
type CheckoutService struct {
	repo      Repository
	processor Processor
	catalog   Catalog
	now       func() time.Time
}

// NewCheckoutService creates a checkout service from injected dependencies.
func NewCheckoutService(repo Repository, processor Processor, catalog Catalog) *CheckoutService {
	return &CheckoutService{
		repo:      repo,
		processor: processor,
		catalog:   catalog,
		now:       time.Now,
	}
}

// CheckoutRequest is what a caller supplies to start a checkout.
type CheckoutRequest struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// customerIdempotencyKey is stable per user so concurrent first checkouts
// create a single processor customer.
func customerIdempotencyKey(userID string) string {
	return "customer-" + uuid.NewSHA1(customerKeyNamespace, []byte(userID)).String()
}

// EnsureCustomer returns the stored processor customer of userID, creating
// and storing one when missing.
func (s *CheckoutService) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	snap, err := s.repo.GetSnapshot(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("load billing snapshot: %w", err)
	}
	if snap != nil && snap.CustomerID != "" {
		return snap.CustomerID, nil
	}

	customerID, err := s.processor.CreateCustomer(ctx, CustomerRequest{
		UserID:         userID,
		Email:          email,
		IdempotencyKey: customerIdempotencyKey(userID),
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	update := SnapshotUpdate{CustomerID: strPtr(customerID), SyncedAt: s.now()}
	if err := s.repo.MergeSnapshot(ctx, userID, update); err != nil {
		snapshotWritesTotal.WithLabelValues(triggerCustomer, "error").Inc()
		return "", fmt.Errorf("store customer: %w", err)
	}
	snapshotWritesTotal.WithLabelValues(triggerCustomer, "ok").Inc()
	log.Infof("[Billing] Created processor customer %s for user %s", customerID, userID)
	return customerID, nil
}

// CreateCheckoutSession starts a subscription checkout for a catalog price.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, userID, email string, req CheckoutRequest) (*CheckoutSession, error) {
	priceID := strings.TrimSpace(req.PriceID)
	if !s.catalog.IsKnownPrice(priceID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrice, priceID)
	}

	customerID, err := s.EnsureCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	session, err := s.processor.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		UserID:     userID,
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return session, nil
}

// CreatePortalSession returns the billing portal URL of userID. Users without
// a customer get ErrNoCustomer.
func (s *CheckoutService) CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	snap, err := s.repo.GetSnapshot(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && snap.CustomerID == "") {
		return "", ErrNoCustomer
	}
	if err != nil {
		return "", fmt.Errorf("load billing snapshot: %w", err)
	}

	url, err := s.processor.CreatePortalSession(ctx, snap.CustomerID, returnURL)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}
