package custody_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthEndpoints verifies the liveness and readiness probes respond
// without authentication.
func TestHealthEndpoints(t *testing.T) {
	baseURL, cleanup := setupCustodyContainer(t)
	defer cleanup()

	client := newRelayClient(t, baseURL)

	t.Run("livez", func(t *testing.T) {
		resp, err := client.GetLiveness(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Status)
		assert.NotEmpty(t, resp.Version)
		assert.NotEmpty(t, resp.Uptime)
	})

	t.Run("readyz", func(t *testing.T) {
		resp, err := client.GetReadiness(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Status)
		require.NotNil(t, resp.Checks)
		assert.Equal(t, "ok", resp.Checks.Database)
	})
}
