package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aasdk "github.com/lifenetwork-ai/aa-kernel-sdk-go"
	"github.com/lifenetwork-ai/aa-kernel-sdk-go/simulated"
)

type cliEnv struct {
	server *simulated.Server
	global []string
}

func newCliEnv(t *testing.T) *cliEnv {
	t.Helper()
	backend, err := simulated.NewDefaultBackend()
	require.NoError(t, err)
	server, err := simulated.NewServer(backend, "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	owner, err := aasdk.GenerateSigner()
	require.NoError(t, err)
	return &cliEnv{
		server: server,
		global: []string{
			"kernelctl",
			"--private-key", owner.PrivateKeyHex(),
			"--bundler-rpc", server.URL(),
			"--paymaster-rpc", server.URL(),
			"--receipt-interval", "20ms",
			"--receipt-timeout", "2s",
			"--store", storeBadger,
			"--store-path", t.TempDir(),
		},
	}
}

func (e *cliEnv) run(args ...string) (string, error) {
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append(append([]string{}, e.global...), args...))
	return strings.TrimSpace(out.String()), err
}

func TestAccountCommand(t *testing.T) {
	env := newCliEnv(t)
	out, err := env.run("account")
	require.NoError(t, err)
	assert.Contains(t, out, "deployed: false")
	assert.Contains(t, out, "balance:  0")
}

func TestSessionLifecycle(t *testing.T) {
	env := newCliEnv(t)
	sessionKey, err := aasdk.GenerateSigner()
	require.NoError(t, err)
	sessionAddr := sessionKey.Address()
	sessionHex := sessionKey.PrivateKeyHex()

	approval, err := env.run("session", "create", "--session-key", sessionAddr.Hex(), "--label", "agent")
	require.NoError(t, err)
	require.NotEmpty(t, approval)

	list, err := env.run("session", "list")
	require.NoError(t, err)
	assert.Contains(t, list, sessionAddr.Hex())
	assert.Contains(t, list, "agent")

	txHash, err := env.run("session", "use", "--approval", approval, "--session-private-key", sessionHex)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txHash, "0x"))

	out, err := env.run("account")
	require.NoError(t, err)
	assert.Contains(t, out, "deployed: true")

	out, err = env.run("session", "revoke", "--session-key", sessionAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, "revoked 1 approval(s)", out)

	_, err = env.run("session", "revoke", "--session-key", sessionAddr.Hex())
	assert.ErrorContains(t, err, "no active approval matched")

	// The account now rejects the old approval.
	_, err = env.run("session", "use", "--approval", approval, "--session-private-key", sessionHex)
	assert.Error(t, err)
}

func TestSessionRevokeFlags(t *testing.T) {
	env := newCliEnv(t)
	_, err := env.run("session", "revoke")
	assert.ErrorContains(t, err, "exactly one of --id or --session-key")
}

func TestSessionCreateRejectsBadInput(t *testing.T) {
	env := newCliEnv(t)
	_, err := env.run("session", "create", "--session-key", "not-an-address")
	assert.ErrorContains(t, err, "invalid session key")

	_, err = env.run("session", "create", "--session-key", "0x000000000000000000000000000000000000dEaD", "--policy", "everything")
	assert.ErrorContains(t, err, `unknown policy "everything"`)
}
