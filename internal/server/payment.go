package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ledgerd/internal/ledger"
)

// Webhook structures

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type WebhookNotification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event"`
	Object WebhookObject `json:"object"`
}

type WebhookObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   Amount            `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

// handlePaymentWebhook is the sole trigger into the bonus distribution
// engine: a confirmed package purchase by the payer, with the package level
// and optional sponsor reference carried in the metadata.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var notification WebhookNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		s.log.Warn("failed to decode webhook", "error", err)
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Message: "Bad request"})
		return
	}

	if notification.Event != "payment.succeeded" {
		s.log.Debug("ignored webhook event", "event", notification.Event)
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ignored"})
		return
	}

	evt, err := s.paymentEvent(notification.Object)
	if err != nil {
		s.rejectWebhook(w, err)
		return
	}

	result, err := s.engine.ProcessPayment(r.Context(), evt)
	if err != nil {
		s.rejectWebhook(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]interface{}{
		"batch_id": result.BatchID,
		"kind":     result.Kind,
		"user_id":  result.UserID,
		"receipts": len(result.Receipts),
	}})
}

func (s *Server) rejectWebhook(w http.ResponseWriter, err error) {
	if s.metrics != nil {
		s.metrics.WebhookRejected.Inc()
	}
	s.log.Warn("payment webhook rejected", "error", err)
	writeError(w, err)
}

func (s *Server) paymentEvent(obj WebhookObject) (ledger.PaymentEvent, error) {
	payer, ok := obj.Metadata["address"]
	if !ok || payer == "" {
		return ledger.PaymentEvent{}, ledger.ErrInvalidAddress
	}

	levelStr, ok := obj.Metadata["package_level"]
	if !ok {
		return ledger.PaymentEvent{}, ledger.ErrUnknownPackage
	}
	level, err := strconv.Atoi(levelStr)
	if err != nil {
		return ledger.PaymentEvent{}, ledger.ErrUnknownPackage
	}

	amount, err := parseCents(obj.Amount.Value)
	if err != nil {
		return ledger.PaymentEvent{}, ledger.ErrInvalidAmount
	}

	return ledger.PaymentEvent{
		ExternalID:   obj.ID,
		Payer:        payer,
		Amount:       amount,
		PackageLevel: level,
		SponsorRef:   obj.Metadata["sponsor"],
	}, nil
}

// parseCents converts a decimal money string ("100", "100.5", "100.50") to
// integer cents without going through floating point.
func parseCents(value string) (int64, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(value), ".")
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || dollars < 0 {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	cents := int64(0)
	if frac != "" {
		if len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q", value)
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("invalid amount %q", value)
		}
	}
	return dollars*100 + cents, nil
}
