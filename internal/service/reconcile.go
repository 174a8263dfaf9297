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
	"breakdown-service/internal/publisher"
	"breakdown-service/internal/repository"
	"breakdown-service/internal/sender"
)

// Outcome classifies what a webhook delivery actually did. Everything except
// a transient store failure maps to a 200 acknowledgment upstream.
type Outcome int

const (
	// OutcomeIgnored: unsupported event type or no correlation id; nothing to do.
	OutcomeIgnored Outcome = iota
	// OutcomeAlreadyReconciled: the guarded update matched zero rows; another
	// delivery (or a concurrent one) already won the transition.
	OutcomeAlreadyReconciled
	// OutcomeReconciled: this delivery transitioned the record to paid.
	OutcomeReconciled
)

const metadataRequestIDKey = "written_request_id"

// ReconcileService turns verified payment events into the guarded
// paid transition plus the at-most-once admin notification.
type ReconcileService struct {
	repo        repository.WrittenRequestRepository
	emailSender sender.EmailSender
	users       identity.UserLookup
	events      publisher.PaidEventPublisher

	adminEmail  string
	amountPence int64
	currency    string
}

// NewReconcileService wires the reconciliation dependencies. users and events
// may be nil; the corresponding steps degrade to "unknown identity" and
// "no event published".
func NewReconcileService(
	repo repository.WrittenRequestRepository,
	emailSender sender.EmailSender,
	users identity.UserLookup,
	events publisher.PaidEventPublisher,
	adminEmail string,
	amountPence int64,
	currency string,
) *ReconcileService {
	return &ReconcileService{
		repo:        repo,
		emailSender: emailSender,
		users:       users,
		events:      events,
		adminEmail:  adminEmail,
		amountPence: amountPence,
		currency:    currency,
	}
}

// HandleEvent processes one verified processor event. The returned error is
// non-nil only for transient store failures during the paid transition, where
// a processor redelivery can change the outcome; every other failure mode is
// logged and absorbed.
func (s *ReconcileService) HandleEvent(ctx context.Context, event stripe.Event) (Outcome, error) {
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		log.WithField("event_type", event.Type).Debug("Ignoring unsupported event type")
		return OutcomeIgnored, nil
	}

	if event.Data == nil {
		log.WithField("event_id", event.ID).Warn("Event has no data payload")
		return OutcomeIgnored, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.WithError(err).WithField("event_id", event.ID).Error("Failed to parse checkout session payload")
		return OutcomeIgnored, nil
	}

	requestID := session.Metadata[metadataRequestIDKey]
	if requestID == "" {
		requestID = session.ClientReferenceID
	}
	if requestID == "" {
		log.WithField("event_id", event.ID).Warn("Event carries no correlation id, nothing to reconcile")
		return OutcomeIgnored, nil
	}

	paymentIntentID := ""
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}

	return s.reconcile(ctx, requestID, session.ID, paymentIntentID)
}

func (s *ReconcileService) reconcile(ctx context.Context, requestID, sessionID, paymentIntentID string) (Outcome, error) {
	logCtx := log.WithFields(log.Fields{
		"request_id":        requestID,
		"stripe_session_id": sessionID,
	})

	transitioned, err := s.repo.MarkPaid(ctx, requestID, sessionID, paymentIntentID)
	if err != nil {
		logCtx.WithError(err).Error("Paid transition failed, requesting redelivery")
		return OutcomeIgnored, fmt.Errorf("paid transition: %w", err)
	}
	if !transitioned {
		// Duplicate or out-of-order delivery, or the record never reached
		// awaiting_payment. Either way there is nothing left to do.
		logCtx.Info("Paid transition matched no row, treating as already reconciled")
		return OutcomeAlreadyReconciled, nil
	}

	logCtx.Info("Request transitioned to paid")

	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load paid request for notification")
		return OutcomeReconciled, nil
	}

	// Defense in depth: the transition gate above already prevents double
	// notification, this catches a racing invocation between update and load.
	if req.NotifiedAt.Valid {
		logCtx.Info("Notification already recorded, skipping send")
		return OutcomeReconciled, nil
	}

	customerEmail := s.resolveCustomerEmail(ctx, req, logCtx)

	if s.notify(ctx, req, customerEmail, logCtx) {
		stamped, err := s.repo.StampNotified(ctx, requestID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to stamp notification timestamp")
		} else if !stamped {
			logCtx.Warn("Notification timestamp already stamped by a concurrent invocation")
		}
	}

	s.publishPaid(ctx, req, customerEmail, logCtx)

	return OutcomeReconciled, nil
}

// resolveCustomerEmail prefers the stored guest email, then the identity
// provider's record for the authenticated user. Resolution failures degrade
// to "unknown" rather than blocking the notification.
func (s *ReconcileService) resolveCustomerEmail(ctx context.Context, req *domain.WrittenRequest, logCtx *log.Entry) string {
	if req.GuestEmail.Valid && req.GuestEmail.String != "" {
		return req.GuestEmail.String
	}

	if req.UserID.Valid && req.UserID.String != "" && s.users != nil {
		user, err := s.users.UserByID(ctx, req.UserID.String)
		if err != nil {
			if !errors.Is(err, identity.ErrUserNotFound) {
				logCtx.WithError(err).Warn("Identity lookup failed")
			}
		} else if user.Email != "" {
			return user.Email
		}
	}

	return "unknown"
}

// notify composes and sends the admin email, recording the attempt in the
// email log. It reports whether the send succeeded so the caller knows
// whether to stamp the notification guard.
func (s *ReconcileService) notify(ctx context.Context, req *domain.WrittenRequest, customerEmail string, logCtx *log.Entry) bool {
	msg, err := composeNotification(req, customerEmail, s.amountPence, s.currency)
	if err != nil {
		logCtx.WithError(err).Error("Failed to compose admin notification")
		return false
	}

	sendErr := s.emailSender.SendEmail(ctx, s.adminEmail, msg.Subject, msg.TextBody, msg.HTMLBody)

	entry := domain.EmailLog{
		RequestID:      req.ID,
		RecipientEmail: s.adminEmail,
		Subject:        msg.Subject,
	}
	if sendErr != nil {
		logCtx.WithError(sendErr).Error("Failed to send admin notification")
		entry.Status = domain.StatusFailed
		entry.ErrorMessage = sql.NullString{String: sendErr.Error(), Valid: true}
	} else {
		logCtx.WithField("recipient", s.adminEmail).Info("Admin notification sent")
		entry.Status = domain.StatusSent
	}

	if err := s.repo.SaveEmailLog(ctx, entry); err != nil {
		logCtx.WithError(err).Error("Failed to save email log")
	}

	return sendErr == nil
}

func (s *ReconcileService) publishPaid(ctx context.Context, req *domain.WrittenRequest, customerEmail string, logCtx *log.Entry) {
	if s.events == nil {
		return
	}

	event := domain.PaidEvent{
		RequestID:   req.ID,
		UserEmail:   customerEmail,
		AmountPence: s.amountPence,
		Currency:    s.currency,
	}
	if req.PaidAt.Valid {
		event.PaidAt = req.PaidAt.Time
	}

	if err := s.events.PublishPaid(ctx, event); err != nil {
		logCtx.WithError(err).Error("Failed to publish paid event")
	}
}
