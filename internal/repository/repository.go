package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"breakdown-service/internal/domain"
)

// WrittenRequestRepository is the persistence surface for written-breakdown
// requests. MarkPaid and StampNotified are conditional updates: they report
// whether a row actually transitioned, which is what the reconciliation
// idempotency guards are built on.
type WrittenRequestRepository interface {
	Create(ctx context.Context, req *domain.WrittenRequest) error
	AttachSession(ctx context.Context, id, sessionID string) error
	MarkPaid(ctx context.Context, id, sessionID, paymentIntentID string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.WrittenRequest, error)
	StampNotified(ctx context.Context, id string) (bool, error)
	StatusBySession(ctx context.Context, id, sessionID string) (domain.RequestStatus, bool, error)
	SaveEmailLog(ctx context.Context, entry domain.EmailLog) error
}

const queryTimeout = 5 * time.Second

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, req *domain.WrittenRequest) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = domain.StatusDraft
	}

	const query = `
        INSERT INTO written_requests
            (id, status, paid, user_id, guest_email, question_1, question_2, question_3, snapshot)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at`

	var snapshot interface{}
	if len(req.Snapshot) > 0 {
		snapshot = []byte(req.Snapshot)
	}

	err := r.db.QueryRowContext(ctx, query,
		req.ID, string(req.Status), req.Paid,
		nullStringOrNil(req.UserID), nullStringOrNil(req.GuestEmail),
		req.Question1, req.Question2, req.Question3, snapshot,
	).Scan(&req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert written request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AttachSession(ctx context.Context, id, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `UPDATE written_requests SET stripe_session_id = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, sessionID)
	if err != nil {
		return fmt.Errorf("attach session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach session: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkPaid performs the guarded paid transition. The status predicate is the
// primary idempotency guard: under concurrent deliveries of the same event the
// store lets exactly one update observe status = 'awaiting_payment'; the rest
// see zero rows affected and must treat the event as already reconciled.
func (r *PostgresRepository) MarkPaid(ctx context.Context, id, sessionID, paymentIntentID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        UPDATE written_requests
        SET status = 'paid',
            paid = true,
            paid_at = now(),
            stripe_session_id = COALESCE(NULLIF($2, ''), stripe_session_id),
            payment_intent_id = NULLIF($3, '')
        WHERE id = $1 AND status = 'awaiting_payment'`

	res, err := r.db.ExecContext(ctx, query, id, sessionID, paymentIntentID)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.WrittenRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT id, status, paid, user_id, guest_email,
               question_1, question_2, question_3, snapshot,
               stripe_session_id, payment_intent_id, paid_at, notified_at, created_at
        FROM written_requests
        WHERE id = $1`

	req := &domain.WrittenRequest{}
	var status string
	var snapshot []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &status, &req.Paid, &req.UserID, &req.GuestEmail,
		&req.Question1, &req.Question2, &req.Question3, &snapshot,
		&req.StripeSessionID, &req.PaymentIntentID, &req.PaidAt, &req.NotifiedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get written request: %w", err)
	}
	req.Status = domain.RequestStatus(status)
	req.Snapshot = snapshot
	return req, nil
}

// StampNotified records that the admin notification went out. The null
// predicate keeps the stamp single-shot even if two handler invocations both
// got as far as sending.
func (r *PostgresRepository) StampNotified(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        UPDATE written_requests
        SET notified_at = now()
        WHERE id = $1 AND notified_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("stamp notified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stamp notified: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) StatusBySession(ctx context.Context, id, sessionID string) (domain.RequestStatus, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT status, paid
        FROM written_requests
        WHERE id = $1 AND stripe_session_id = $2`

	var status string
	var paid bool
	err := r.db.QueryRowContext(ctx, query, id, sessionID).Scan(&status, &paid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, domain.ErrNotFound
		}
		return "", false, fmt.Errorf("status by session: %w", err)
	}
	return domain.RequestStatus(status), paid, nil
}

func (r *PostgresRepository) SaveEmailLog(ctx context.Context, entry domain.EmailLog) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        INSERT INTO email_logs (request_id, recipient_email, subject, status, error_message)
        VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		entry.RequestID, entry.RecipientEmail, entry.Subject,
		string(entry.Status), nullStringOrNil(entry.ErrorMessage))
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

func nullStringOrNil(ns sql.NullString) interface{} {
	if ns.Valid {
		return ns.String
	}
	return nil
}
