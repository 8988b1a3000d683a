package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// StartJetStream starts an embedded NATS server with JetStream enabled and
// returns a connected JetStream context. Storage lives in t.TempDir so each
// test gets a clean stream state.
func StartJetStream(t *testing.T) (nats.JetStreamContext, func()) {
	t.Helper()

	s, err := server.NewServer(&server.Options{
		Host:           "127.0.0.1",
		Port:           server.RANDOM_PORT,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 256,
		JetStream:      true,
		StoreDir:       t.TempDir(),
	})
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	cleanup := func() {
		nc.Close()
		s.Shutdown()
	}

	return js, cleanup
}

// Eventually polls the condition until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
