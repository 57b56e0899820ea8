package holepunch

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	coordinator := NewCoordinator()
	require.NoError(t, coordinator.Listen(0))
	t.Cleanup(func() { coordinator.Close() })
	go coordinator.Serve()
	return coordinator
}

func dialCoordinator(t *testing.T, coordinator *Coordinator) *net.UDPConn {
	t.Helper()
	port := coordinator.Addr().(*net.UDPAddr).Port
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendPacket(t *testing.T, conn *net.UDPConn, packet Packet) {
	t.Helper()
	data, err := json.Marshal(packet)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func readPayload(t *testing.T, conn *net.UDPConn) MatchPayload {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	var payload MatchPayload
	require.NoError(t, json.Unmarshal(buf[:n], &payload))
	return payload
}

func TestCoordinatorExchangesEndpoints(t *testing.T) {
	coordinator := startCoordinator(t)
	alice := dialCoordinator(t, coordinator)
	bob := dialCoordinator(t, coordinator)

	sendPacket(t, alice, Packet{UID: "u1", PeerUID: "u2", MatchID: "m1"})
	assert.Eventually(t, func() bool {
		return coordinator.PeerCount() == 1
	}, time.Second, 10*time.Millisecond)

	sendPacket(t, bob, Packet{UID: "u2", PeerUID: "u1", MatchID: "m1"})

	toBob := readPayload(t, bob)
	assert.Equal(t, "u1", toBob.Peer.UID)
	assert.Equal(t, "m1", toBob.MatchID)
	assert.NotZero(t, toBob.Peer.Port)

	toAlice := readPayload(t, alice)
	assert.Equal(t, "u2", toAlice.Peer.UID)
	assert.Equal(t, "m1", toAlice.MatchID)
}

func TestCoordinatorGeneratesMatchID(t *testing.T) {
	coordinator := startCoordinator(t)
	alice := dialCoordinator(t, coordinator)
	bob := dialCoordinator(t, coordinator)

	sendPacket(t, alice, Packet{UID: "u1", PeerUID: "u2"})
	assert.Eventually(t, func() bool {
		return coordinator.PeerCount() == 1
	}, time.Second, 10*time.Millisecond)
	sendPacket(t, bob, Packet{UID: "u2", PeerUID: "u1"})

	payload := readPayload(t, alice)
	assert.NotEmpty(t, payload.MatchID)
}

func TestCoordinatorKillDropsPair(t *testing.T) {
	coordinator := startCoordinator(t)
	alice := dialCoordinator(t, coordinator)

	sendPacket(t, alice, Packet{UID: "u1", PeerUID: "u2"})
	assert.Eventually(t, func() bool {
		return coordinator.PeerCount() == 1
	}, time.Second, 10*time.Millisecond)

	sendPacket(t, alice, Packet{UID: "u1", PeerUID: "u2", Kill: true})
	assert.Eventually(t, func() bool {
		return coordinator.PeerCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinatorIgnoresGarbage(t *testing.T) {
	coordinator := startCoordinator(t)
	conn := dialCoordinator(t, coordinator)

	_, err := conn.Write([]byte("{broken"))
	require.NoError(t, err)
	sendPacket(t, conn, Packet{UID: "u1"}) // missing peerUid

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, coordinator.PeerCount())
}

func TestNotifierSendsKill(t *testing.T) {
	coordinator := startCoordinator(t)
	alice := dialCoordinator(t, coordinator)
	sendPacket(t, alice, Packet{UID: "u1", PeerUID: "u2"})
	assert.Eventually(t, func() bool {
		return coordinator.PeerCount() == 1
	}, time.Second, 10*time.Millisecond)

	addr := coordinator.Addr().(*net.UDPAddr)
	notifier, err := NewNotifier("127.0.0.1", addr.Port)
	require.NoError(t, err)
	defer notifier.Close()

	notifier.Kill("u1", "u2", "m1")
	assert.Eventually(t, func() bool {
		return coordinator.PeerCount() == 0
	}, time.Second, 10*time.Millisecond)
}
