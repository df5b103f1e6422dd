package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"licensedesk.app/server/internal/email"
	"licensedesk.app/server/internal/logger"
	"licensedesk.app/server/license"
)

type IssueOrRenewRequest struct {
	ClientName    string `json:"client_name"`
	Email         string `json:"email"`
	ClientID      string `json:"client_id"`
	TransactionID string `json:"transaction_id"`
	DurationDays  int    `json:"duration_days"`
}

type IssueOrRenewResponse struct {
	ClientID        string `json:"client_id"`
	MachineID       string `json:"machine_id"`
	ValidUntil      string `json:"valid_until"`
	GeneratedSecret string `json:"generated_secret,omitempty"`
	WasNew          bool   `json:"was_new"`
}

type DeactivateRequest struct {
	ClientID string `json:"client_id"`
}

type DeactivateResponse struct {
	Affected bool `json:"affected"`
}

type ReactivateRequest struct {
	ClientID string `json:"client_id"`
}

type ReactivateResponse struct {
	Affected   bool   `json:"affected"`
	ValidUntil string `json:"valid_until,omitempty"`
}

type ValidateRequest struct {
	Email            string `json:"email"`
	CredentialSecret string `json:"credential_secret"`
}

type ValidateResponse struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id,omitempty"`
}

type ListEntry struct {
	ClientID        string `json:"client_id"`
	ClientName      string `json:"client_name"`
	Email           string `json:"email"`
	MachineID       string `json:"machine_id"`
	LastPaymentDate string `json:"last_payment_date"`
	ValidUntil      string `json:"valid_until"`
	Status          string `json:"status"`
}

func (s *Server) IssueOrRenew(w http.ResponseWriter, r *http.Request) {
	var req IssueOrRenewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	result, err := s.Engine.IssueOrRenew(ctx, license.IssueOrRenewParams{
		ClientName:    req.ClientName,
		Email:         req.Email,
		ClientID:      req.ClientID,
		TransactionID: req.TransactionID,
		DurationDays:  req.DurationDays,
	}, time.Now())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	logger.Info("license issued or renewed", map[string]interface{}{
		"client_id": result.License.ClientID,
		"was_new":   result.WasNew,
	})

	if result.WasNew {
		s.notifyNewLicense(result)
	}

	writeJSON(w, http.StatusOK, IssueOrRenewResponse{
		ClientID:        result.License.ClientID,
		MachineID:       result.License.MachineID,
		ValidUntil:      result.License.ValidUntil,
		GeneratedSecret: result.GeneratedSecret,
		WasNew:          result.WasNew,
	})
}

// notifyNewLicense emails the freshly generated secret to the client
// contact. Delivery is best-effort; the secret is already in the response
// and will not be surfaced again.
func (s *Server) notifyNewLicense(result *license.IssueResult) {
	if !s.Config.EmailEnabled() || result.License.Email == "" {
		return
	}

	body := fmt.Sprintf("A license was issued for %s.\n\nClient ID: %s\nSecret: %s\nValid until: %s\n",
		result.License.ClientName,
		result.License.ClientID,
		result.GeneratedSecret,
		result.License.ValidUntil,
	)

	if err := email.Send(s.Config, result.License.Email, "Your license", body); err != nil {
		logger.Warn("failed to send license email", map[string]interface{}{
			"client_id": result.License.ClientID,
			"error":     err.Error(),
		})
	}
}

func (s *Server) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req DeactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	affected, err := s.Engine.Deactivate(ctx, req.ClientID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if affected {
		logger.Info("license deactivated", map[string]interface{}{"client_id": req.ClientID})
	}

	writeJSON(w, http.StatusOK, DeactivateResponse{Affected: affected})
}

func (s *Server) Reactivate(w http.ResponseWriter, r *http.Request) {
	var req ReactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	affected, validUntil, err := s.Engine.Reactivate(ctx, req.ClientID, time.Now())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if affected {
		logger.Info("license reactivated", map[string]interface{}{
			"client_id":   req.ClientID,
			"valid_until": validUntil,
		})
	}

	writeJSON(w, http.StatusOK, ReactivateResponse{Affected: affected, ValidUntil: validUntil})
}

func (s *Server) ValidateCredentials(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	result, err := s.Engine.ValidateCredentials(ctx, req.Email, req.CredentialSecret, time.Now())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	switch result.Outcome {
	case license.OutcomeAuthorized:
		writeJSON(w, http.StatusOK, ValidateResponse{Status: result.Outcome, ClientID: result.ClientID})
	case license.OutcomeForbidden:
		writeJSON(w, http.StatusForbidden, ValidateResponse{Status: result.Outcome})
	default:
		writeJSON(w, http.StatusUnauthorized, ValidateResponse{Status: license.OutcomeUnauthorized})
	}
}

func (s *Server) ListLicenses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	entries, err := s.Engine.ListAll(ctx, time.Now())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	response := make([]ListEntry, 0, len(entries))
	for _, entry := range entries {
		response = append(response, ListEntry{
			ClientID:        entry.License.ClientID,
			ClientName:      entry.License.ClientName,
			Email:           entry.License.Email,
			MachineID:       entry.License.MachineID,
			LastPaymentDate: entry.License.LastPaymentDate,
			ValidUntil:      entry.License.ValidUntil,
			Status:          entry.Status,
		})
	}

	writeJSON(w, http.StatusOK, response)
}
