package billing

import "errors"

var (
	// ErrInvalidSignature is returned when a webhook body does not carry a
	// valid processor signature. Nothing downstream runs for such a request.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent marks a verified event whose payload could not be
	// decoded into one of the known shapes.
	ErrMalformedEvent = errors.New("malformed webhook event")

	// ErrMissingUserMetadata marks a processor object that does not name the
	// application user it belongs to.
	ErrMissingUserMetadata = errors.New("processor object has no user metadata")

	// ErrNoCustomer is returned when an operation needs a stored processor
	// customer and the user has none yet.
	ErrNoCustomer = errors.New("no billing customer on file")

	// ErrUnknownPrice is returned for checkout requests naming a price that is
	// not part of the plan catalog.
	ErrUnknownPrice = errors.New("unknown price id")

	// ErrNotFound is returned by processors when the referenced object does
	// not exist on the processor side.
	ErrNotFound = errors.New("processor object not found")
)
