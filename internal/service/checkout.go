package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"

	"breakdown-service/internal/domain"
	"breakdown-service/internal/identity"
	"breakdown-service/internal/repository"
	"breakdown-service/internal/validator"
)

// ErrInvalidCheckout marks client-side input problems (bad questions, bad
// email); everything else from InitiateCheckout is an internal failure.
var ErrInvalidCheckout = errors.New("invalid checkout request")

// CheckoutSessions is the slice of the processor client the checkout flow
// needs; *session.Client from the Stripe SDK satisfies it.
type CheckoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type CheckoutInput struct {
	GuestEmail  string
	Questions   []string
	Snapshot    json.RawMessage
	AccessToken string
}

type CheckoutResult struct {
	RequestID  string `json:"request_id"`
	SessionID  string `json:"session_id"`
	SessionURL string `json:"url"`
}

// CheckoutService creates the written request record and the matching
// processor checkout session, with the record id attached as event metadata
// so the webhook can correlate the completed payment back to the record.
type CheckoutService struct {
	repo     repository.WrittenRequestRepository
	sessions CheckoutSessions
	users    identity.UserLookup

	siteURL     string
	productName string
	amountPence int64
	currency    string
}

func NewCheckoutService(
	repo repository.WrittenRequestRepository,
	sessions CheckoutSessions,
	users identity.UserLookup,
	siteURL string,
	amountPence int64,
	currency string,
) *CheckoutService {
	return &CheckoutService{
		repo:        repo,
		sessions:    sessions,
		users:       users,
		siteURL:     siteURL,
		productName: "Written Breakdown",
		amountPence: amountPence,
		currency:    currency,
	}
}

func (s *CheckoutService) InitiateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	questions, err := validator.ValidateQuestions(input.Questions)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCheckout, err)
	}

	var user *identity.User
	if input.AccessToken != "" && s.users != nil {
		user, err = s.users.UserFromToken(ctx, input.AccessToken)
		if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
			log.WithError(err).Warn("Access token lookup failed, continuing as guest")
		}
	}

	email := input.GuestEmail
	if user != nil && user.Email != "" {
		email = user.Email
	}
	if err := validator.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidCheckout)
	}

	req := &domain.WrittenRequest{
		Status:    domain.StatusAwaitingPayment,
		Question1: questions[0],
		Question2: questions[1],
		Question3: questions[2],
		Snapshot:  input.Snapshot,
	}
	if user != nil {
		req.UserID = sql.NullString{String: user.ID, Valid: true}
	} else {
		req.GuestEmail = sql.NullString{String: input.GuestEmail, Valid: true}
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create written request: %w", err)
	}

	metadata := map[string]string{metadataRequestIDKey: req.ID}
	if user != nil {
		metadata["user_id"] = user.ID
	} else {
		metadata["guest_email"] = input.GuestEmail
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(email),
		ClientReferenceID: stripe.String(req.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.currency),
					UnitAmount: stripe.Int64(s.amountPence),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(s.productName),
					},
				},
			},
		},
		// The webhook correlates on this metadata; it goes on both the session
		// and the payment intent so either object carries the record id.
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		SuccessURL: stripe.String(fmt.Sprintf("%s/written-breakdown?request_id=%s&session_id={CHECKOUT_SESSION_ID}", s.siteURL, req.ID)),
		CancelURL:  stripe.String(fmt.Sprintf("%s/written-breakdown?cancelled=1&request_id=%s", s.siteURL, req.ID)),
	}
	params.Metadata = metadata

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if err := s.repo.AttachSession(ctx, req.ID, sess.ID); err != nil {
		return nil, fmt.Errorf("persist checkout session id: %w", err)
	}

	log.WithFields(log.Fields{
		"request_id":        req.ID,
		"stripe_session_id": sess.ID,
	}).Info("Checkout session created")

	return &CheckoutResult{RequestID: req.ID, SessionID: sess.ID, SessionURL: sess.URL}, nil
}

// StatusBySession reports the polled payment status for a request/session
// pair. Unknown pairs read as still awaiting payment.
func (s *CheckoutService) StatusBySession(ctx context.Context, requestID, sessionID string) (domain.RequestStatus, bool, error) {
	status, paid, err := s.repo.StatusBySession(ctx, requestID, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.StatusAwaitingPayment, false, nil
		}
		return domain.StatusAwaitingPayment, false, err
	}
	return status, paid, nil
}
