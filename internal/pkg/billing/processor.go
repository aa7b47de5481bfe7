package billing

import "context"

// Processor is the subset of the payment processor API the billing package
// relies on.
type Processor interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error)
	UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error
	GetInvoiceSubscriptionID(ctx context.Context, invoiceID string) (string, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// CustomerRequest describes a processor customer to create.
type CustomerRequest struct {
	UserID         string
	Email          string
	IdempotencyKey string
}

// CheckoutSessionRequest describes a hosted subscription checkout.
type CheckoutSessionRequest struct {
	UserID     string
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the part of a created checkout session handed back to
// the caller.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}
