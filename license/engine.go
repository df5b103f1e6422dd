package license

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"licensedesk.app/server/models"
	"licensedesk.app/server/storage"
)

// Sentinel errors for the engine's failure taxonomy. Validation outcomes
// (unauthorized, forbidden) and missing deactivation targets are results,
// not errors.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ReactivationWindowDays is the flat validity window granted by Reactivate,
// regardless of the record's original duration.
const ReactivationWindowDays = 30

const (
	OutcomeAuthorized   = "authorized"
	OutcomeUnauthorized = "unauthorized"
	OutcomeForbidden    = "forbidden"
)

// Engine implements the license lifecycle against a Storage. All temporal
// operations take the current time as a parameter so callers and tests
// control the clock.
//
// Writes to the same client_id are serialized through a per-client mutex so
// a renewal and a deactivation racing on one record never interleave their
// read-modify-write cycles.
type Engine struct {
	store storage.Storage

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(store storage.Storage) *Engine {
	return &Engine{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) clientLock(clientID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, exists := e.locks[clientID]
	if !exists {
		lock = &sync.Mutex{}
		e.locks[clientID] = lock
	}
	return lock
}

type IssueOrRenewParams struct {
	ClientName    string
	Email         string
	ClientID      string
	TransactionID string
	DurationDays  int
}

func (p IssueOrRenewParams) validate() error {
	var result *multierror.Error
	if p.ClientID == "" {
		result = multierror.Append(result, errors.New("client_id is required"))
	}
	if p.DurationDays < 0 {
		result = multierror.Append(result, errors.New("duration_days must not be negative"))
	}
	return result.ErrorOrNil()
}

// IssueResult reports the outcome of IssueOrRenew. GeneratedSecret is set
// only when WasNew is true; the plaintext secret is surfaced exactly once
// and cannot be re-requested through the engine.
type IssueResult struct {
	License         *models.License
	GeneratedSecret string
	WasNew          bool
}

// IssueOrRenew creates a license for a new client_id or renews an existing
// one. New records get a freshly minted machine_id and secret; renewals
// update only transaction_id, the payment date, the expiry window and the
// active flag.
func (e *Engine) IssueOrRenew(ctx context.Context, params IssueOrRenewParams, today time.Time) (*IssueResult, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	lock := e.clientLock(params.ClientID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetLicense(ctx, params.ClientID)
	if err != nil {
		return nil, storeError(err)
	}

	paymentDate := formatDate(today)
	validUntil := formatDate(addDays(today, params.DurationDays))

	if existing != nil {
		existing.TransactionID = params.TransactionID
		existing.DurationDays = params.DurationDays
		existing.LastPaymentDate = paymentDate
		existing.ValidUntil = validUntil
		existing.IsActive = true

		if err := e.store.SaveLicense(ctx, existing); err != nil {
			return nil, storeError(err)
		}
		return &IssueResult{License: existing, WasNew: false}, nil
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	license := &models.License{
		ClientID:        params.ClientID,
		ClientName:      params.ClientName,
		Email:           params.Email,
		TransactionID:   params.TransactionID,
		DurationDays:    params.DurationDays,
		MachineID:       generateMachineID(),
		Secret:          secret,
		LastPaymentDate: paymentDate,
		ValidUntil:      validUntil,
		IsActive:        true,
	}

	if err := e.store.SaveLicense(ctx, license); err != nil {
		return nil, storeError(err)
	}

	return &IssueResult{License: license, GeneratedSecret: secret, WasNew: true}, nil
}

// Deactivate flips the administrative kill-switch off. Unknown client_ids
// are not an error; the returned bool tells the caller whether anything
// was affected.
func (e *Engine) Deactivate(ctx context.Context, clientID string) (bool, error) {
	if clientID == "" {
		return false, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}

	lock := e.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	license, err := e.store.GetLicense(ctx, clientID)
	if err != nil {
		return false, storeError(err)
	}
	if license == nil {
		return false, nil
	}

	license.IsActive = false
	if err := e.store.SaveLicense(ctx, license); err != nil {
		return false, storeError(err)
	}
	return true, nil
}

// Reactivate turns a license back on with a flat 30-day window from today,
// overwriting whatever expiry the record had before. Returns the new
// valid_until date, or affected=false when the client_id is unknown.
func (e *Engine) Reactivate(ctx context.Context, clientID string, today time.Time) (bool, string, error) {
	if clientID == "" {
		return false, "", fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	}

	lock := e.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	license, err := e.store.GetLicense(ctx, clientID)
	if err != nil {
		return false, "", storeError(err)
	}
	if license == nil {
		return false, "", nil
	}

	license.IsActive = true
	license.LastPaymentDate = formatDate(today)
	license.ValidUntil = formatDate(addDays(today, ReactivationWindowDays))

	if err := e.store.SaveLicense(ctx, license); err != nil {
		return false, "", storeError(err)
	}
	return true, license.ValidUntil, nil
}

// ComputeStatus derives a record's effective status for a given day. It is
// a pure function: a record is valid iff it is active and today is on or
// before valid_until. Records whose valid_until no longer parses as a
// calendar date classify as malformed instead of failing the read.
func ComputeStatus(license *models.License, today time.Time) string {
	validUntil, err := time.Parse(models.DateLayout, license.ValidUntil)
	if err != nil {
		return models.StatusMalformed
	}
	if !license.IsActive {
		return models.StatusExpired
	}
	if truncateToDay(today).After(validUntil) {
		return models.StatusExpired
	}
	return models.StatusValid
}

// ValidationResult is the outcome of a credential check. ClientID is set
// only for OutcomeAuthorized.
type ValidationResult struct {
	Outcome  string
	ClientID string
}

// ValidateCredentials looks up the record matching the email/secret pair
// exactly. No match is unauthorized; a match whose status is not valid is
// forbidden, so callers can distinguish wrong credentials from a lapsed
// license. Read-only.
func (e *Engine) ValidateCredentials(ctx context.Context, email, secret string, today time.Time) (*ValidationResult, error) {
	license, err := e.store.FindLicenseByCredentials(ctx, email, secret)
	if err != nil {
		return nil, storeError(err)
	}
	if license == nil {
		return &ValidationResult{Outcome: OutcomeUnauthorized}, nil
	}
	if ComputeStatus(license, today) != models.StatusValid {
		return &ValidationResult{Outcome: OutcomeForbidden}, nil
	}
	return &ValidationResult{Outcome: OutcomeAuthorized, ClientID: license.ClientID}, nil
}

// Entry pairs a record with its status computed against the "today" the
// caller passed to ListAll.
type Entry struct {
	License *models.License
	Status  string
}

// ListAll enumerates every record in client_id order with a freshly
// computed status.
func (e *Engine) ListAll(ctx context.Context, today time.Time) ([]Entry, error) {
	licenses, err := e.store.ListLicenses(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	entries := make([]Entry, 0, len(licenses))
	for _, license := range licenses {
		entries = append(entries, Entry{
			License: license,
			Status:  ComputeStatus(license, today),
		})
	}
	return entries, nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func formatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

func addDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
