package domain

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// RequestStatus is the lifecycle of a written-breakdown request. The
// progression is strictly draft -> awaiting_payment -> paid; there are no
// back-transitions.
type RequestStatus string

const (
	StatusDraft           RequestStatus = "draft"
	StatusAwaitingPayment RequestStatus = "awaiting_payment"
	StatusPaid            RequestStatus = "paid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("record not found")

// WrittenRequest is a paid written-breakdown request. Either UserID or
// GuestEmail identifies the requester; UserID takes precedence when both are
// set. StripeSessionID and PaymentIntentID are correlation keys echoed back
// by the payment processor; the record's own ID stays the primary key.
type WrittenRequest struct {
	ID              string
	Status          RequestStatus
	Paid            bool
	UserID          sql.NullString
	GuestEmail      sql.NullString
	Question1       string
	Question2       string
	Question3       string
	Snapshot        json.RawMessage
	StripeSessionID sql.NullString
	PaymentIntentID sql.NullString
	PaidAt          sql.NullTime
	NotifiedAt      sql.NullTime
	CreatedAt       time.Time
}

type EmailStatus string

const (
	StatusSent   EmailStatus = "sent"
	StatusFailed EmailStatus = "failed"
)

// EmailLog is an audit row for every attempted admin notification.
type EmailLog struct {
	RequestID      string
	RecipientEmail string
	Subject        string
	Status         EmailStatus
	ErrorMessage   sql.NullString
}

// PaidEvent is published after a request transitions to paid.
type PaidEvent struct {
	RequestID   string    `json:"request_id"`
	UserEmail   string    `json:"user_email"`
	AmountPence int64     `json:"amount_pence"`
	Currency    string    `json:"currency"`
	PaidAt      time.Time `json:"paid_at"`
}
