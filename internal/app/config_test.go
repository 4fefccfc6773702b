package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("OZONE_ADMIN_DID", "did:plc:ozone")
	t.Setenv("OZONE_SERVICE_URL", "https://ozone.example")
	t.Setenv("PERMISSIONS_ATOMIC_AUDIT", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.ProfileCacheTTL)
	assert.True(t, cfg.PermissionsAtomicAudit)
	assert.False(t, cfg.IsProduction())

	services := cfg.ModerationServices()
	require.Len(t, services, 2)
	assert.Equal(t, "ozone", services[1].Value)
	assert.Equal(t, "https://ozone.example", services[1].URL)
}
