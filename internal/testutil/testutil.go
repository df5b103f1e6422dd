package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"licensedesk.app/server/internal/config"
	"licensedesk.app/server/models"
	"licensedesk.app/server/storage"
)

// Day is the fixed "today" used across tests so date math stays
// deterministic.
var Day = time.Date(2026, time.January, 15, 10, 30, 0, 0, time.UTC)

// DaysLater returns Day shifted by n calendar days.
func DaysLater(n int) time.Time {
	return Day.AddDate(0, 0, n)
}

// TestConfig returns a config suitable for handler tests: no SMTP, no
// Stripe, permissive rate limit.
func TestConfig() *config.Config {
	return &config.Config{
		Port:            "8080",
		DatabaseURL:     ":memory:",
		EmailFrom:       "licenses@licensedesk.app",
		RateLimitMax:    1000,
		RateLimitWindow: time.Minute,
		StoreTimeout:    5 * time.Second,
	}
}

// TestLicense builds an active record valid for 30 days from Day.
func TestLicense(clientID, email, secret string) models.License {
	return models.License{
		ClientID:        clientID,
		ClientName:      "Client " + clientID,
		Email:           email,
		TransactionID:   "txn_" + clientID,
		DurationDays:    30,
		MachineID:       "machine-" + clientID,
		Secret:          secret,
		LastPaymentDate: Day.Format(models.DateLayout),
		ValidUntil:      DaysLater(30).Format(models.DateLayout),
		IsActive:        true,
	}
}

// SeedLicenses stores the given records, failing the test on error.
func SeedLicenses(t *testing.T, store storage.Storage, licenses ...models.License) {
	t.Helper()
	for i := range licenses {
		if err := store.SaveLicense(context.Background(), &licenses[i]); err != nil {
			t.Fatalf("Failed to seed license %s: %v", licenses[i].ClientID, err)
		}
	}
}

// MarshalBody encodes v for use as a request body, failing the test on
// error.
func MarshalBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}
	return bytes.NewBuffer(body)
}
