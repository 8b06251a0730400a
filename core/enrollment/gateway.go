package enrollment

import "context"

// Payment event types
const (
	EventCheckoutCompleted = "checkout_completed"
	EventPaymentFailed     = "payment_failed"
	EventIgnored           = "ignored"
)

type (
	// PaymentGateway is a hosted checkout provider notifying payment outcomes through signed webhooks.
	PaymentGateway interface {
		// CreateCheckoutSession returns the URL of a checkout page for the course.
		// UserID & CourseID must be echoed back in the events of this session.
		CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
		// ParseWebhook verifies the signature of a webhook payload & decodes its event.
		// Returns ErrInvalidSignature when the payload cannot be authenticated.
		ParseWebhook(payload []byte, signature string) (PaymentEvent, error)
	}

	CheckoutRequest struct {
		UserID       string
		UserEmail    string
		CourseID     string
		CourseTitle  string
		PriceInCents int64
		SuccessURL   string
		CancelURL    string
	}

	PaymentEvent struct {
		ID               string
		Type             string
		UserID           string
		CourseID         string
		PaymentReference string
	}
)
