package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82/webhook"

	"breakdown-service/internal/calc"
	"breakdown-service/internal/ratelimit"
	"breakdown-service/internal/service"
)

// Stripe posts small JSON payloads; anything bigger is not a webhook.
const maxWebhookBodyBytes = 65536

// Server bundles the HTTP surface: the payment webhook, checkout initiation,
// status polling, and the stateless calculator endpoint.
type Server struct {
	reconcile     *service.ReconcileService
	checkout      *service.CheckoutService
	webhookSecret string
	limiter       *ratelimit.Limiter
}

func NewServer(reconcile *service.ReconcileService, checkout *service.CheckoutService, webhookSecret string) *Server {
	return &Server{
		reconcile:     reconcile,
		checkout:      checkout,
		webhookSecret: webhookSecret,
		limiter:       ratelimit.NewLimiter(10, time.Minute),
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/stripe/webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/checkout-session", s.handleCheckout)
	mux.HandleFunc("GET /api/written-request-status", s.handleStatus)
	mux.HandleFunc("POST /api/calculate", s.handleCalculate)
	mux.HandleFunc("GET /api/health", s.handleHealth)
}

// handleWebhook is the payment reconciliation endpoint. Signature
// verification is the sole admission control: nothing in the body is parsed
// before the signature checks out. Past that, only a transient store failure
// during the paid transition returns a non-2xx, so the processor redelivers
// exactly the events whose outcome a retry can change.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.WithError(err).Warn("Failed to read webhook body")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		log.WithError(err).Warn("Webhook signature verification failed")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	if _, err := s.reconcile.HandleEvent(r.Context(), event); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database update failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type checkoutRequest struct {
	GuestEmail string          `json:"guest_email"`
	Questions  []string        `json:"questions"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if limited := s.limiter.Check("checkout:" + ratelimit.ClientIP(r)); !limited.Allowed {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var body checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := s.checkout.InitiateCheckout(r.Context(), service.CheckoutInput{
		GuestEmail:  strings.TrimSpace(body.GuestEmail),
		Questions:   body.Questions,
		Snapshot:    body.Snapshot,
		AccessToken: bearerToken(r.Header.Get("Authorization")),
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCheckout) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.WithError(err).Error("Checkout initiation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "unable to start checkout"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.URL.Query().Get("request_id"))
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if requestID == "" || sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"paid": false, "status": "awaiting_payment"})
		return
	}

	status, paid, err := s.checkout.StatusBySession(r.Context(), requestID, sessionID)
	if err != nil {
		log.WithError(err).Error("Status lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"paid": false, "status": "awaiting_payment"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"paid": paid, "status": string(status)})
}

type calculateRequest struct {
	Mode         string                   `json:"mode"`
	Ecommerce    *calc.EcommerceInputs    `json:"ecommerce,omitempty"`
	VAT          *calc.VATInputs          `json:"vat,omitempty"`
	BreakEven    *calc.BreakEvenInputs    `json:"breakeven,omitempty"`
	SelfEmployed *calc.SelfEmployedInputs `json:"selfemployed,omitempty"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if limited := s.limiter.Check("calculate:" + ratelimit.ClientIP(r)); !limited.Allowed {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var body calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	switch body.Mode {
	case "ecommerce":
		if body.Ecommerce == nil {
			body.Ecommerce = &calc.EcommerceInputs{}
		}
		writeJSON(w, http.StatusOK, calc.Ecommerce(*body.Ecommerce))
	case "vat":
		if body.VAT == nil {
			body.VAT = &calc.VATInputs{}
		}
		writeJSON(w, http.StatusOK, calc.VAT(*body.VAT))
	case "breakeven":
		if body.BreakEven == nil {
			body.BreakEven = &calc.BreakEvenInputs{}
		}
		writeJSON(w, http.StatusOK, calc.BreakEven(*body.BreakEven))
	case "selfemployed":
		if body.SelfEmployed == nil {
			body.SelfEmployed = &calc.SelfEmployedInputs{}
		}
		writeJSON(w, http.StatusOK, calc.SelfEmployed(*body.SelfEmployed))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown calculator mode"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func bearerToken(headerValue string) string {
	parts := strings.SplitN(headerValue, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}
