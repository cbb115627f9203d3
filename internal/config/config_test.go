package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"therapia/backend/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("THERAPIA_SCHEDULING_CONFLICT_POLICY", "")
	t.Setenv("THERAPIA_STORE_DRIVER", "")
	t.Setenv("THERAPIA_NOTIFY_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.ConflictPolicyOverlap, cfg.ConflictPolicy)
	assert.Equal(t, domain.DefaultDurationMinutes, cfg.DefaultDurationMinutes)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, NotifyProviderStub, cfg.Notify.Provider)
	assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
	require.NotNil(t, cfg.ClinicZone)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("THERAPIA_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("THERAPIA_STORE_DRIVER", "Memory")
	t.Setenv("THERAPIA_SCHEDULING_CONFLICT_POLICY", "exact")
	t.Setenv("THERAPIA_SCHEDULING_DEFAULT_DURATION", "45")
	t.Setenv("THERAPIA_NOTIFY_PROVIDER", "smtp")
	t.Setenv("THERAPIA_NOTIFY_TIMEOUT", "3s")
	t.Setenv("THERAPIA_CLINIC_TIME_ZONE", "America/Bogota")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.GRPCHost)
	assert.Equal(t, 6000, cfg.GRPCPort)
	assert.Equal(t, "127.0.0.1:6000", cfg.GRPCAddr())
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, domain.ConflictPolicyExact, cfg.ConflictPolicy)
	assert.Equal(t, 45, cfg.DefaultDurationMinutes)
	assert.Equal(t, NotifyProviderSMTP, cfg.Notify.Provider)
	assert.Equal(t, 3*time.Second, cfg.Notify.Timeout)
	assert.Equal(t, "America/Bogota", cfg.ClinicZone.String())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"conflict policy", "THERAPIA_SCHEDULING_CONFLICT_POLICY", "fuzzy"},
		{"default duration", "THERAPIA_SCHEDULING_DEFAULT_DURATION", "-1"},
		{"notify timeout", "THERAPIA_NOTIFY_TIMEOUT", "soon"},
		{"time zone", "THERAPIA_CLINIC_TIME_ZONE", "Mars/Olympus"},
		{"store driver", "THERAPIA_STORE_DRIVER", "mongo"},
		{"notify provider", "THERAPIA_NOTIFY_PROVIDER", "pigeon"},
		{"shutdown timeout", "THERAPIA_SHUTDOWN_TIMEOUT", "later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
