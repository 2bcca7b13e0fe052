package license

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/db"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/logging"
	"github.com/adamscao/licenseserver/internal/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc     *Service
	db      *db.DB
	keys    *repository.LicenseRepository
	devices *repository.DeviceRepository
	audit   *repository.AuditRepository
	clock   *testClock
}

type envOption func(*Dependencies)

func withStrictTransitions() envOption {
	return func(d *Dependencies) { d.StrictTransitions = true }
}

func withAuditStore(store AuditStore) envOption {
	return func(d *Dependencies) { d.Audit = store }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "licenses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	env := &testEnv{
		db:      database,
		keys:    repository.NewLicenseRepository(database.DB),
		devices: repository.NewDeviceRepository(database.DB),
		audit:   repository.NewAuditRepository(database.DB),
		clock:   newTestClock(),
	}

	deps := Dependencies{
		Keys:    env.keys,
		Devices: env.devices,
		Audit:   env.audit,
		Logger:  logging.Discard(),
		Now:     env.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.svc = NewService(deps)

	return env
}

// createKey issues a key and returns its raw form and id
func (e *testEnv) createKey(t *testing.T, maxDevices int, expiresAt *time.Time) (string, int64) {
	t.Helper()
	created, err := e.svc.CreateKey(CreateKeyOptions{MaxDevices: maxDevices, ExpiresAt: expiresAt}, "127.0.0.1")
	require.NoError(t, err)
	return created.RawKey, created.Key.ID
}

func (e *testEnv) validate(t *testing.T, key, fingerprint string) *Result {
	t.Helper()
	result, err := e.svc.Validate(ValidateRequest{
		RawKey:      key,
		Fingerprint: fingerprint,
		RemoteAddr:  "192.0.2.10",
	})
	require.NoError(t, err)
	return result
}

func (e *testEnv) deviceCount(t *testing.T, licenseID int64) int {
	t.Helper()
	n, err := e.devices.CountByLicense(licenseID)
	require.NoError(t, err)
	return n
}

func (e *testEnv) auditCount(t *testing.T, action string) int {
	t.Helper()
	n, err := e.audit.CountByAction(action)
	require.NoError(t, err)
	return n
}

func (e *testEnv) totalAudit(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&n))
	return n
}

func (e *testEnv) status(t *testing.T, id int64) string {
	t.Helper()
	key, err := e.keys.GetByID(id)
	require.NoError(t, err)
	return key.Status
}

// failingAuditStore rejects every write
type failingAuditStore struct {
	mu       sync.Mutex
	attempts int
}

func (s *failingAuditStore) Create(*models.AuditLog) error {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
	return errors.New("disk full")
}

func (s *failingAuditStore) List(string, int, int) ([]*models.AuditLog, error) {
	return nil, errors.New("disk full")
}
