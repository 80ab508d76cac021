package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id string

	mu     sync.Mutex
	alive  bool
	pings  int
	closed bool
	// respond makes the conn act like a healthy client: every probe is
	// answered immediately.
	respond bool
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

func (m *mockConn) ClearAlive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = false
}

func (m *mockConn) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	if m.respond {
		m.alive = true
	}
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) pingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

type mockRooms struct {
	mu   sync.Mutex
	left []string
}

func (m *mockRooms) Leave(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, connID)
}

func (m *mockRooms) leftIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.left...)
}

func startMonitor(t *testing.T, rooms *mockRooms) (*Monitor, *clock.Mock, func()) {
	t.Helper()
	logger := zerolog.Nop()
	mck := clock.NewMock()
	m := New(Config{
		Logger:        &logger,
		Rooms:         rooms,
		Clock:         mck,
		ProbeInterval: 30 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go m.Run(ctx, wg)

	// let Run reach the ticker before advancing the mock clock
	time.Sleep(10 * time.Millisecond)

	return m, mck, func() {
		cancel()
		wg.Wait()
	}
}

func TestMonitor_EvictsAfterTwoMissedIntervals(t *testing.T) {
	rooms := &mockRooms{}
	m, mck, stop := startMonitor(t, rooms)
	defer stop()

	dead := &mockConn{id: "dead", alive: true}
	m.Track(dead)

	// first sweep: clears the flag and probes, no eviction yet
	mck.Add(30 * time.Second)
	require.Eventually(t, func() bool { return dead.pingCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, dead.isClosed())
	assert.Empty(t, rooms.leftIDs())

	// second sweep: still no reply, connection goes
	mck.Add(30 * time.Second)
	require.Eventually(t, func() bool { return dead.isClosed() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"dead"}, rooms.leftIDs())
}

func TestMonitor_HealthyConnectionSurvives(t *testing.T) {
	rooms := &mockRooms{}
	m, mck, stop := startMonitor(t, rooms)
	defer stop()

	healthy := &mockConn{id: "healthy", alive: true, respond: true}
	m.Track(healthy)

	for i := 1; i <= 4; i++ {
		mck.Add(30 * time.Second)
		want := i
		require.Eventually(t, func() bool { return healthy.pingCount() == want }, time.Second, 5*time.Millisecond)
	}

	assert.False(t, healthy.isClosed())
	assert.Empty(t, rooms.leftIDs())
}

func TestMonitor_UntrackedConnectionIsNotProbed(t *testing.T) {
	rooms := &mockRooms{}
	m, mck, stop := startMonitor(t, rooms)
	defer stop()

	c := &mockConn{id: "gone", alive: true}
	m.Track(c)
	m.Untrack(c.ID())

	mck.Add(30 * time.Second)
	mck.Add(30 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, c.pingCount())
	assert.False(t, c.isClosed())
	assert.Empty(t, rooms.leftIDs())
}

func TestMonitor_SingleMissedProbeIsTolerated(t *testing.T) {
	rooms := &mockRooms{}
	m, mck, stop := startMonitor(t, rooms)
	defer stop()

	flaky := &mockConn{id: "flaky", alive: true}
	m.Track(flaky)

	// drops the first probe...
	mck.Add(30 * time.Second)
	require.Eventually(t, func() bool { return flaky.pingCount() == 1 }, time.Second, 5*time.Millisecond)

	// ...but replies late, before the next sweep
	flaky.mu.Lock()
	flaky.alive = true
	flaky.mu.Unlock()

	mck.Add(30 * time.Second)
	require.Eventually(t, func() bool { return flaky.pingCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, flaky.isClosed())
}
