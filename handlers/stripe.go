package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"licensedesk.app/server/internal/logger"
	"licensedesk.app/server/license"
)

// defaultStripeDurationDays applies when an invoice carries no
// duration_days metadata.
const defaultStripeDurationDays = 30

// StripeWebhook renews a license when its invoice is paid and deactivates
// it when payment fails. Invoices identify the client through a client_id
// metadata entry set at checkout.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.Config.StripeEnabled() {
		writeError(w, http.StatusNotFound, "Stripe webhook not configured")
		return
	}

	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error reading request body")
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.Config.StripeWebhookSecret)
	if err != nil {
		logger.Warn("stripe signature verification failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	logger.Info("stripe event received", map[string]interface{}{"type": string(event.Type)})

	switch event.Type {
	case "invoice.paid":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			writeError(w, http.StatusBadRequest, "Error parsing invoice data")
			return
		}
		if err := s.handleInvoicePaid(r, &invoice); err != nil {
			s.writeEngineError(w, err)
			return
		}

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			writeError(w, http.StatusBadRequest, "Error parsing invoice data")
			return
		}
		if err := s.handleInvoicePaymentFailed(r, &invoice); err != nil {
			s.writeEngineError(w, err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleInvoicePaid(r *http.Request, invoice *stripe.Invoice) error {
	clientID := invoice.Metadata["client_id"]
	if clientID == "" {
		// Not a license invoice; acknowledge so Stripe stops retrying.
		logger.Warn("invoice without client_id metadata", map[string]interface{}{"invoice": invoice.ID})
		return nil
	}

	durationDays := defaultStripeDurationDays
	if v := invoice.Metadata["duration_days"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			durationDays = n
		}
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	result, err := s.Engine.IssueOrRenew(ctx, license.IssueOrRenewParams{
		ClientName:    invoice.CustomerName,
		Email:         invoice.CustomerEmail,
		ClientID:      clientID,
		TransactionID: invoice.ID,
		DurationDays:  durationDays,
	}, time.Now())
	if err != nil {
		return err
	}

	logger.Info("license renewed from invoice", map[string]interface{}{
		"client_id": clientID,
		"invoice":   invoice.ID,
		"was_new":   result.WasNew,
	})

	if result.WasNew {
		s.notifyNewLicense(result)
	}
	return nil
}

func (s *Server) handleInvoicePaymentFailed(r *http.Request, invoice *stripe.Invoice) error {
	clientID := invoice.Metadata["client_id"]
	if clientID == "" {
		return nil
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	affected, err := s.Engine.Deactivate(ctx, clientID)
	if err != nil {
		return err
	}

	logger.Info("license deactivated after failed payment", map[string]interface{}{
		"client_id": clientID,
		"invoice":   invoice.ID,
		"affected":  affected,
	})
	return nil
}
