package paymentsvc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/enrollment"
)

// metadata keys echoed back in webhook events
const (
	metaUserID   = "userId"
	metaCourseID = "courseId"
)

// StripeGateway is a PaymentGateway backed by Stripe Checkout.
type StripeGateway struct {
	sc            *client.API
	currency      string
	webhookSecret string
}

var _ enrollment.PaymentGateway = (*StripeGateway)(nil)

func NewStripeGateway(conf *core.Config) *StripeGateway {
	return newStripeGateway(conf, "")
}

// newStripeGateway points the API backends at backendURL when set.
func newStripeGateway(conf *core.Config, backendURL string) *StripeGateway {
	httpClient := &http.Client{Timeout: conf.Stripe.Timeout}
	backendConf := func() *stripe.BackendConfig {
		bc := &stripe.BackendConfig{HTTPClient: httpClient}
		if backendURL != "" {
			bc.URL = stripe.String(backendURL)
		}
		if !conf.Debug {
			bc.LeveledLogger = &stripe.LeveledLogger{Level: stripe.LevelError}
		}
		return bc
	}

	sc := client.New(conf.Stripe.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConf()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConf()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConf()),
	})
	return &StripeGateway{
		sc:            sc,
		currency:      conf.Stripe.Currency,
		webhookSecret: conf.Stripe.WebhookSecret,
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req enrollment.CheckoutRequest) (string, error) {
	metadata := map[string]string{
		metaUserID:   req.UserID,
		metaCourseID: req.CourseID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.CourseTitle),
						Description: stripe.String("Lifetime access to " + req.CourseTitle),
					},
					UnitAmount: stripe.Int64(req.PriceInCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata},
	}
	if req.UserEmail != "" {
		params.CustomerEmail = stripe.String(req.UserEmail)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", errors.Wrap(err, "creating stripe checkout session")
	}
	return sess.URL, nil
}

// ParseWebhook verifies the Stripe-Signature header & maps the event to a PaymentEvent.
// Events that do not affect enrollments are returned as EventIgnored.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (enrollment.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return enrollment.PaymentEvent{}, errors.Wrap(enrollment.ErrInvalidSignature, err.Error())
	}

	evt := enrollment.PaymentEvent{ID: event.ID, Type: enrollment.EventIgnored}
	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return enrollment.PaymentEvent{}, errors.Wrap(err, "decoding checkout session")
		}
		// delayed payment methods complete the session unpaid, then send async_payment_succeeded
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
			sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			return evt, nil
		}
		evt.Type = enrollment.EventCheckoutCompleted
		evt.UserID = sess.Metadata[metaUserID]
		evt.CourseID = sess.Metadata[metaCourseID]
		evt.PaymentReference = sess.ID
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			evt.PaymentReference = sess.PaymentIntent.ID
		}

	case "checkout.session.async_payment_failed":
		var sess stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return enrollment.PaymentEvent{}, errors.Wrap(err, "decoding checkout session")
		}
		evt.Type = enrollment.EventPaymentFailed
		evt.UserID = sess.Metadata[metaUserID]
		evt.CourseID = sess.Metadata[metaCourseID]
		evt.PaymentReference = sess.ID

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err = json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return enrollment.PaymentEvent{}, errors.Wrap(err, "decoding payment intent")
		}
		evt.Type = enrollment.EventPaymentFailed
		evt.UserID = pi.Metadata[metaUserID]
		evt.CourseID = pi.Metadata[metaCourseID]
		evt.PaymentReference = pi.ID
	}
	return evt, nil
}
