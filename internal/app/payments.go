package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v75"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
)

// CheckoutInput is what the payment processor needs to collect payment
// for one print order.
type CheckoutInput struct {
	OrderID       string
	BookTitle     string
	PriceCents    int64
	Currency      string
	CustomerEmail string
}

// CheckoutSession is a hosted payment page for an order.
type CheckoutSession struct {
	ID  string
	URL string
}

// Payments creates hosted checkout sessions. Swappable so tests can run
// without the processor.
type Payments interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (CheckoutSession, error)
}

// StripePayments implements Payments with Stripe Checkout.
type StripePayments struct {
	successURL string
	cancelURL  string
}

// NewStripePayments configures the global Stripe client and returns a
// checkout-session factory. publicBaseURL is where the buyer lands
// after paying.
func NewStripePayments(apiKey, publicBaseURL string) (*StripePayments, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe: api key is required")
	}
	if publicBaseURL == "" {
		return nil, fmt.Errorf("stripe: public base URL is required")
	}
	stripe.Key = apiKey
	return &StripePayments{
		successURL: publicBaseURL + "/orders?paid=1",
		cancelURL:  publicBaseURL + "/orders?canceled=1",
	}, nil
}

// CreateCheckoutSession creates a payment-mode checkout session for the
// order. The idempotency key is derived from the order ID so retried
// requests can never open two sessions for one order.
func (p *StripePayments) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(in.OrderID),
		CustomerEmail:     stripe.String(in.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Currency),
					UnitAmount: stripe.Int64(in.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Printed storybook: %s", in.BookTitle)),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewSHA1(uuid.NameSpaceURL, []byte("snaptale:order:"+in.OrderID)).String())

	session, err := checkoutsession.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
