// common/telemetry/otel_test.go
package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/tradeflow/common/logger"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing endpoint", Config{ServiceName: "svc", ServiceVersion: "v1"}, "endpoint"},
		{"missing serviceName", Config{Endpoint: "host:1234", ServiceVersion: "v1"}, "service name"},
		{"missing version", Config{Endpoint: "host:1234", ServiceName: "svc"}, "service version"},
		{"all set", Config{Endpoint: "host:1234", ServiceName: "svc", ServiceVersion: "v1"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{SamplerRatio: 7}
	cfg.applyDefaults()
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.ReconnectPeriod)
	assert.Equal(t, 1.0, cfg.SamplerRatio)
}

func TestServiceAttributes(t *testing.T) {
	attrs := serviceAttributes(Config{ServiceName: "tradeflow", ServiceVersion: "v1.0.0"})
	require.GreaterOrEqual(t, len(attrs), 2)
	assert.Equal(t, "tradeflow", attrs[0].Value.AsString())
	assert.Equal(t, "v1.0.0", attrs[1].Value.AsString())
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{}, logger.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracer_Enabled(t *testing.T) {
	// экспортёр gRPC подключается лениво, коллектор не нужен
	shutdown, err := InitTracer(context.Background(), Config{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "testsvc",
		ServiceVersion: "v0.1",
		Insecure:       true,
		Timeout:        200 * time.Millisecond,
	}, logger.NewNop())
	require.NoError(t, err)
	_ = shutdown(context.Background())
}

func TestInitTracer_InvalidConfig(t *testing.T) {
	_, err := InitTracer(context.Background(), Config{Enabled: true}, logger.NewNop())
	assert.Error(t, err)
}
