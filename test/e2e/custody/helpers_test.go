package custody_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tagcustody/tagcustody/pkg/cryptox"
	"github.com/tagcustody/tagcustody/pkg/custodysdk"
	"github.com/tagcustody/tagcustody/pkg/desfire"
	"github.com/tagcustody/tagcustody/pkg/desfire/desfiretest"
)

/*
 * Common constants and helper functions for custody service end-to-end
 * tests: container setup, relay token minting and card-side frame pumping.
 */

const (
	testImageName = "tagcustody-test:latest"

	testJWTSecret = "e2e-relay-secret-0123456789abcdef"
	testMasterKey = "e2e-master-key-material-not-for-prod"
)

// TestMain manages the test lifecycle, builds the Docker image once before
// all tests and cleans it up after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Custody Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Custody Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

// buildDockerImage builds the test Docker image if it doesn't exist.
func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/custody/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

// cleanupDockerImage removes the test Docker image.
func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// setupCustodyContainer starts the custody service in a container and returns
// the base URL.
func setupCustodyContainer(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"CUSTODY_DATABASE_FILE": "/tmp/custody.db",
			"CUSTODY_MASTER_KEY":    testMasterKey,
			"CUSTODY_JWT_SECRET":    testJWTSecret,
			"ENV":                   "test",
			"LOG_LEVEL":             "info",
			"LOG_FORMAT":            "json",
			// Relax rate limits; tests make many rapid requests
			"RATELIMIT_STRICT_REQUESTS":   "1000",
			"RATELIMIT_STRICT_WINDOW_SEC": "60",
			"RATELIMIT_STRICT_BURST":      "1000",
			"RATELIMIT_MODERATE_REQUESTS": "1000",
			"RATELIMIT_MODERATE_BURST":    "1000",
		},
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return baseURL, cleanup
}

// relayToken mints an HS256 bearer token with the given scopes, signed with
// the shared secret the container was started with.
func relayToken(t *testing.T, scopes string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   "relay-e2e",
		"scope": scopes,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	return signed
}

// newRelayClient returns an SDK client authorized for both relay and admin
// operations.
func newRelayClient(t *testing.T, baseURL string) *custodysdk.Client {
	t.Helper()
	return custodysdk.NewClient(baseURL, relayToken(t, "custody:relay custody:admin"))
}

// authenticateCard drives the mutual-authentication handshake between the
// backend and a simulated card until the session is authenticated.
func authenticateCard(t *testing.T, client *custodysdk.Client, card *desfiretest.Card, tokenID, userID string) string {
	t.Helper()
	ctx := context.Background()

	begin, err := client.BeginAuth(ctx, custodysdk.AuthBeginRequest{
		TokenID: tokenID,
		UserID:  userID,
		KeyNo:   0,
	})
	require.NoError(t, err)
	require.NotEmpty(t, begin.SessionID)
	require.NotEmpty(t, begin.Frame)

	frame := begin.Frame
	for i := 0; i < 3; i++ {
		resp, err := client.ContinueAuth(ctx, custodysdk.AuthContinueRequest{
			SessionID:    begin.SessionID,
			CardResponse: card.Respond(frame),
		})
		require.NoError(t, err)
		if resp.Authenticated {
			return begin.SessionID
		}
		frame = resp.Frame
	}

	t.Fatal("handshake did not authenticate within three rounds")
	return ""
}

// pumpFrames feeds an ordered frame sequence to the card and requires every
// intermediate status to be "more frames" and the final one success.
func pumpFrames(t *testing.T, card *desfiretest.Card, frames [][]byte) {
	t.Helper()

	for i, frame := range frames {
		resp, err := desfire.ParseResponse(card.Respond(frame))
		require.NoError(t, err, "frame %d rejected", i)
		if i < len(frames)-1 {
			require.True(t, resp.More, "frame %d should continue the chain", i)
		} else {
			require.False(t, resp.More, "final frame should end the chain")
		}
	}
}

// newTestCard registers a fresh token with the backend and returns the
// matching simulated card.
func newTestCard(t *testing.T, client *custodysdk.Client, tokenID, owner string) *desfiretest.Card {
	t.Helper()

	rawKey, err := cryptox.GenerateCardKey(cryptox.CardKeySize)
	require.NoError(t, err)

	key, err := desfire.NormalizeKey(rawKey)
	require.NoError(t, err)

	resp, err := client.RegisterToken(context.Background(), custodysdk.RegisterTokenRequest{
		TokenID:  tokenID,
		OwnerUID: owner,
		Key:      rawKey,
	})
	require.NoError(t, err)
	require.Equal(t, owner, resp.CurrentOwner)

	return desfiretest.NewCard(key, desfire.ModeEnciphered)
}
