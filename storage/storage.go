package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"licensedesk.app/server/internal/logger"
	"licensedesk.app/server/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage is the durable keyed record set behind the license engine.
// Lookups that find nothing return (nil, nil); an error means the store
// itself failed.
type Storage interface {
	// GetLicense returns the record for clientID, or nil when absent.
	GetLicense(ctx context.Context, clientID string) (*models.License, error)

	// FindLicenseByCredentials returns the record matching both email and
	// secret exactly (case-sensitive). When more than one record matches,
	// the one with the smallest client_id wins, so repeated calls stay
	// deterministic even if the uniqueness invariant has been violated.
	FindLicenseByCredentials(ctx context.Context, email, secret string) (*models.License, error)

	// SaveLicense inserts or replaces the record keyed by its ClientID.
	SaveLicense(ctx context.Context, license *models.License) error

	// ListLicenses returns every record ordered by client_id.
	ListLicenses(ctx context.Context) ([]*models.License, error)

	Close() error
}

type MemoryStorage struct {
	mu       sync.RWMutex
	Licenses map[string]models.License
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{Licenses: make(map[string]models.License)}
}

func (m *MemoryStorage) GetLicense(ctx context.Context, clientID string) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	license, exists := m.Licenses[clientID]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (m *MemoryStorage) FindLicenseByCredentials(ctx context.Context, email, secret string) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, clientID := range m.sortedIDs() {
		license := m.Licenses[clientID]
		if license.Email == email && license.Secret == secret {
			return &license, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) SaveLicense(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Licenses[license.ClientID] = *license
	return nil
}

func (m *MemoryStorage) ListLicenses(ctx context.Context) ([]*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	licenses := make([]*models.License, 0, len(m.Licenses))
	for _, clientID := range m.sortedIDs() {
		license := m.Licenses[clientID]
		licenses = append(licenses, &license)
	}
	return licenses, nil
}

// sortedIDs assumes the caller holds at least a read lock.
func (m *MemoryStorage) sortedIDs() []string {
	ids := make([]string, 0, len(m.Licenses))
	for id := range m.Licenses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryStorage) Close() error {
	return nil
}

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	// busy_timeout keeps concurrent writers from failing immediately with
	// SQLITE_BUSY; it bounds, rather than removes, the wait.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db, path: path}
	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

const licenseColumns = `client_id, client_name, email, transaction_id, duration_days,
	machine_id, secret, last_payment_date, valid_until, is_active`

func scanLicense(row interface{ Scan(...any) error }) (*models.License, error) {
	var license models.License
	err := row.Scan(
		&license.ClientID,
		&license.ClientName,
		&license.Email,
		&license.TransactionID,
		&license.DurationDays,
		&license.MachineID,
		&license.Secret,
		&license.LastPaymentDate,
		&license.ValidUntil,
		&license.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (s *SQLiteStorage) GetLicense(ctx context.Context, clientID string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE client_id = ?`

	license, err := scanLicense(s.db.QueryRowContext(ctx, query, clientID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return license, nil
}

func (s *SQLiteStorage) FindLicenseByCredentials(ctx context.Context, email, secret string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses
		WHERE email = ? AND secret = ? ORDER BY client_id LIMIT 1`

	license, err := scanLicense(s.db.QueryRowContext(ctx, query, email, secret))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return license, nil
}

func (s *SQLiteStorage) SaveLicense(ctx context.Context, license *models.License) error {
	query := `
		INSERT INTO licenses (` + licenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			client_name = excluded.client_name,
			email = excluded.email,
			transaction_id = excluded.transaction_id,
			duration_days = excluded.duration_days,
			machine_id = excluded.machine_id,
			secret = excluded.secret,
			last_payment_date = excluded.last_payment_date,
			valid_until = excluded.valid_until,
			is_active = excluded.is_active`

	_, err := s.db.ExecContext(ctx, query,
		license.ClientID,
		license.ClientName,
		license.Email,
		license.TransactionID,
		license.DurationDays,
		license.MachineID,
		license.Secret,
		license.LastPaymentDate,
		license.ValidUntil,
		license.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save license: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListLicenses(ctx context.Context) ([]*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses ORDER BY client_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn("failed to close rows", map[string]interface{}{"error": err.Error()})
		}
	}()

	var licenses []*models.License
	for rows.Next() {
		license, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, license)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}
	return licenses, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
