package models

// DateLayout is the calendar-date format used for payment and expiry dates.
// Dates are stored as plain strings so records migrated from older,
// loosely-typed databases survive a read; status computation classifies
// records whose dates no longer parse.
const DateLayout = "2006-01-02"

const (
	StatusValid     = "valid"
	StatusExpired   = "expired"
	StatusMalformed = "malformed"
)

// License is one client's license record, keyed by ClientID.
//
// MachineID and Secret are minted once at first issuance and never change
// afterwards. ValidUntil is always LastPaymentDate + DurationDays, inclusive.
type License struct {
	ClientID        string `json:"client_id"`
	ClientName      string `json:"client_name"`
	Email           string `json:"email"`
	TransactionID   string `json:"transaction_id"`
	DurationDays    int    `json:"duration_days"`
	MachineID       string `json:"machine_id"`
	Secret          string `json:"-"`
	LastPaymentDate string `json:"last_payment_date"`
	ValidUntil      string `json:"valid_until"`
	IsActive        bool   `json:"is_active"`
}
