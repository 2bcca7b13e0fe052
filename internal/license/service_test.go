package license

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/models"
)

func TestCreateKey(t *testing.T) {
	env := newTestEnv(t)
	expires := env.clock.Now().Add(30 * 24 * time.Hour)

	created, err := env.svc.CreateKey(CreateKeyOptions{MaxDevices: 4, ExpiresAt: &expires, Note: "acme corp"}, "10.0.0.1")
	require.NoError(t, err)

	assert.Regexp(t, keyFormat, created.RawKey)
	assert.Equal(t, NormalizeKey(created.RawKey)[:4]+"...", created.Key.DisplayHint)

	stored, err := env.svc.GetKey(created.Key.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.MaxDevices)
	assert.Equal(t, "active", stored.Status)
	assert.Equal(t, "acme corp", stored.Note)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.Equal(expires))

	// Only the salted hash is persisted
	creds, err := env.keys.ListCredentials()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.NotContains(t, creds[0].KeyHash, NormalizeKey(created.RawKey))
	assert.True(t, MatchKey(created.RawKey, creds[0].Salt, creds[0].KeyHash))

	logs, err := env.svc.ListAudit(AuditFilter{Action: models.ActionKeyCreated})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	var details map[string]any
	require.NoError(t, json.Unmarshal(logs[0].Details, &details))
	assert.Equal(t, "acme corp", details["note"])
	assert.EqualValues(t, 4, details["maxDevices"])
}

func TestCreateKey_Defaults(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.CreateKey(CreateKeyOptions{}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, created.Key.MaxDevices)
	assert.Nil(t, created.Key.ExpiresAt)

	_, err = env.svc.CreateKey(CreateKeyOptions{MaxDevices: -2}, "admin")
	assert.True(t, errors.Is(err, ErrInputInvalid))
}

func TestCreateKey_DistinctSalts(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.createKey(t, 1, nil)
	}

	creds, err := env.keys.ListCredentials()
	require.NoError(t, err)

	salts := make(map[string]bool)
	for _, c := range creds {
		assert.False(t, salts[c.Salt])
		salts[c.Salt] = true
	}
}

func TestListKeys_DeviceCount(t *testing.T) {
	env := newTestEnv(t)
	key, id := env.createKey(t, 3, nil)
	env.createKey(t, 1, nil)

	require.True(t, env.validate(t, key, "fp-1").Valid)
	require.True(t, env.validate(t, key, "fp-2").Valid)

	keys, err := env.svc.ListKeys()
	require.NoError(t, err)
	require.Len(t, keys, 2)

	for _, k := range keys {
		if k.ID == id {
			assert.Equal(t, 2, k.DeviceCount)
		} else {
			assert.Equal(t, 0, k.DeviceCount)
		}
	}
}

func TestUpdateKeyStatus_Permissive(t *testing.T) {
	env := newTestEnv(t)
	key, id := env.createKey(t, 1, nil)

	require.NoError(t, env.svc.UpdateKeyStatus(id, "revoked", "admin"))
	assert.False(t, env.validate(t, key, "fp-1").Valid)

	// Revocation is reversible unless strict transitions are enabled
	require.NoError(t, env.svc.UpdateKeyStatus(id, "active", "admin"))
	assert.True(t, env.validate(t, key, "fp-1").Valid)

	logs, err := env.svc.ListAudit(AuditFilter{Action: models.ActionKeyStatusChanged})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	var details map[string]any
	require.NoError(t, json.Unmarshal(logs[0].Details, &details))
	assert.Equal(t, "revoked", details["oldStatus"])
	assert.Equal(t, "active", details["newStatus"])
}

func TestUpdateKeyStatus_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, id := env.createKey(t, 1, nil)

	err := env.svc.UpdateKeyStatus(id, "deleted", "admin")
	assert.True(t, errors.Is(err, ErrInputInvalid))

	err = env.svc.UpdateKeyStatus(id+100, "active", "admin")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Zero(t, env.auditCount(t, models.ActionKeyStatusChanged))
}

func TestUpdateKeyStatus_Strict(t *testing.T) {
	env := newTestEnv(t, withStrictTransitions())
	_, id := env.createKey(t, 1, nil)

	require.NoError(t, env.svc.UpdateKeyStatus(id, "suspended", "admin"))
	require.NoError(t, env.svc.UpdateKeyStatus(id, "active", "admin"))
	require.NoError(t, env.svc.UpdateKeyStatus(id, "revoked", "admin"))

	err := env.svc.UpdateKeyStatus(id, "active", "admin")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "revoked", env.status(t, id))

	status := "suspended"
	err = env.svc.UpdateKey(id, KeyUpdate{Status: &status}, "admin")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	// Re-applying the current status is a no-op transition
	require.NoError(t, env.svc.UpdateKeyStatus(id, "revoked", "admin"))
}

func TestUpdateKey(t *testing.T) {
	env := newTestEnv(t)
	expires := env.clock.Now().Add(time.Hour)
	key, id := env.createKey(t, 1, &expires)

	max := 5
	note := "renewed"
	later := env.clock.Now().Add(365 * 24 * time.Hour)
	require.NoError(t, env.svc.UpdateKey(id, KeyUpdate{MaxDevices: &max, Note: &note, ExpiresAt: &later}, "admin"))

	stored, err := env.svc.GetKey(id)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.MaxDevices)
	assert.Equal(t, "renewed", stored.Note)
	assert.True(t, stored.ExpiresAt.Equal(later))

	env.clock.Advance(2 * time.Hour)
	assert.True(t, env.validate(t, key, "fp-1").Valid)

	require.NoError(t, env.svc.UpdateKey(id, KeyUpdate{ClearExpiry: true}, "admin"))
	stored, err = env.svc.GetKey(id)
	require.NoError(t, err)
	assert.Nil(t, stored.ExpiresAt)

	logs, err := env.svc.ListAudit(AuditFilter{Action: models.ActionKeyUpdated})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	var details struct {
		Fields []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(logs[1].Details, &details))
	assert.ElementsMatch(t, []string{"maxDevices", "expiresAt", "note"}, details.Fields)
}

func TestUpdateKey_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, id := env.createKey(t, 1, nil)

	err := env.svc.UpdateKey(id, KeyUpdate{}, "admin")
	assert.True(t, errors.Is(err, ErrInputInvalid))

	zero := 0
	err = env.svc.UpdateKey(id, KeyUpdate{MaxDevices: &zero}, "admin")
	assert.True(t, errors.Is(err, ErrInputInvalid))

	bogus := "archived"
	err = env.svc.UpdateKey(id, KeyUpdate{Status: &bogus}, "admin")
	assert.True(t, errors.Is(err, ErrInputInvalid))

	note := "x"
	err = env.svc.UpdateKey(id+1, KeyUpdate{Note: &note}, "admin")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteKey_Missing(t *testing.T) {
	env := newTestEnv(t)
	err := env.svc.DeleteKey(42, "admin")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Zero(t, env.auditCount(t, models.ActionKeyDeleted))
}
