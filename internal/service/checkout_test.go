package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"breakdown-service/internal/domain"
	"breakdown-service/internal/identity"
)

type fakeSessions struct {
	newErr     error
	lastParams *stripe.CheckoutSessionParams
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.lastParams = params
	return &stripe.CheckoutSession{ID: "cs_new_1", URL: "https://checkout.example.com/cs_new_1"}, nil
}

type tokenUsers struct {
	user *identity.User
}

func (f *tokenUsers) UserFromToken(ctx context.Context, token string) (*identity.User, error) {
	if f.user == nil {
		return nil, identity.ErrUserNotFound
	}
	return f.user, nil
}

func (f *tokenUsers) UserByID(ctx context.Context, id string) (*identity.User, error) {
	return nil, identity.ErrUserNotFound
}

func newCheckoutFixture(repo *fakeRepo, sessions *fakeSessions, users identity.UserLookup) *CheckoutService {
	return NewCheckoutService(repo, sessions, users, "https://example.com", 3900, "gbp")
}

func validInput() CheckoutInput {
	return CheckoutInput{
		GuestEmail: "guest@example.com",
		Questions:  []string{"one", "two", "three"},
	}
}

func TestInitiateCheckout_GuestHappyPath(t *testing.T) {
	repo := &fakeRepo{}
	sessions := &fakeSessions{}
	svc := newCheckoutFixture(repo, sessions, &tokenUsers{})

	result, err := svc.InitiateCheckout(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "cs_new_1", result.SessionID)
	assert.Equal(t, "https://checkout.example.com/cs_new_1", result.SessionURL)
	assert.NotEmpty(t, result.RequestID)

	require.NotNil(t, repo.record)
	assert.Equal(t, domain.StatusAwaitingPayment, repo.record.Status)
	assert.Equal(t, "guest@example.com", repo.record.GuestEmail.String)
	assert.False(t, repo.record.UserID.Valid)

	// The record id must ride on the session metadata for the webhook.
	require.NotNil(t, sessions.lastParams)
	assert.Equal(t, repo.record.ID, sessions.lastParams.Metadata["written_request_id"])
	assert.Equal(t, repo.record.ID, *sessions.lastParams.ClientReferenceID)
	require.NotNil(t, sessions.lastParams.PaymentIntentData)
	assert.Equal(t, repo.record.ID, sessions.lastParams.PaymentIntentData.Metadata["written_request_id"])

	assert.Equal(t, repo.record.ID, repo.attachedID)
	assert.Equal(t, "cs_new_1", repo.attachedSess)
}

func TestInitiateCheckout_AuthenticatedUserWins(t *testing.T) {
	repo := &fakeRepo{}
	sessions := &fakeSessions{}
	users := &tokenUsers{user: &identity.User{ID: "user-1", Email: "member@example.com"}}
	svc := newCheckoutFixture(repo, sessions, users)

	input := validInput()
	input.AccessToken = "token-1"

	_, err := svc.InitiateCheckout(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, "user-1", repo.record.UserID.String)
	assert.False(t, repo.record.GuestEmail.Valid)
	assert.Equal(t, "member@example.com", *sessions.lastParams.CustomerEmail)
	assert.Equal(t, "user-1", sessions.lastParams.Metadata["user_id"])
}

func TestInitiateCheckout_Validation(t *testing.T) {
	repo := &fakeRepo{}
	svc := newCheckoutFixture(repo, &fakeSessions{}, &tokenUsers{})

	tests := []struct {
		name  string
		input CheckoutInput
	}{
		{"two questions", CheckoutInput{GuestEmail: "a@b.co", Questions: []string{"one", "two"}}},
		{"blank question", CheckoutInput{GuestEmail: "a@b.co", Questions: []string{"one", "  ", "three"}}},
		{"overlong question", CheckoutInput{GuestEmail: "a@b.co", Questions: []string{"one", "two", string(make([]byte, 201))}}},
		{"bad email", CheckoutInput{GuestEmail: "not-an-email", Questions: []string{"one", "two", "three"}}},
		{"missing email", CheckoutInput{Questions: []string{"one", "two", "three"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.InitiateCheckout(context.Background(), tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCheckout)
			assert.Nil(t, repo.record)
		})
	}
}

func TestInitiateCheckout_SessionCreationFailure(t *testing.T) {
	repo := &fakeRepo{}
	sessions := &fakeSessions{newErr: errors.New("stripe down")}
	svc := newCheckoutFixture(repo, sessions, &tokenUsers{})

	_, err := svc.InitiateCheckout(context.Background(), validInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCheckout)
}

func TestStatusBySession_NotFoundReadsAwaiting(t *testing.T) {
	repo := &fakeRepo{statusErr: domain.ErrNotFound}
	svc := newCheckoutFixture(repo, &fakeSessions{}, &tokenUsers{})

	status, paid, err := svc.StatusBySession(context.Background(), "r1", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPayment, status)
	assert.False(t, paid)
}

func TestStatusBySession_Paid(t *testing.T) {
	repo := &fakeRepo{statusResult: domain.StatusPaid, statusPaid: true}
	svc := newCheckoutFixture(repo, &fakeSessions{}, &tokenUsers{})

	status, paid, err := svc.StatusBySession(context.Background(), "r1", "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, status)
	assert.True(t, paid)
}
