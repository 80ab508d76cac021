package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const defaultProbeInterval = 30 * time.Second

type (
	// Conn is the monitor's view of a live connection.
	Conn interface {
		ID() string
		Alive() bool
		ClearAlive()
		Ping() error
		Close() error
	}

	// Rooms is where evicted connections get cleaned up.
	Rooms interface {
		Leave(connID string)
	}

	// Observer is notified about evictions.
	Observer interface {
		ConnectionEvicted()
	}

	// Monitor probes every tracked connection on a fixed interval and evicts
	// ones that stop responding. Two-strike design: a connection that was
	// marked not-alive on the previous sweep and produced no traffic since
	// is closed; otherwise it is marked not-alive and pinged. Any reply from
	// the client re-marks it alive.
	Monitor struct {
		logger   zerolog.Logger
		clock    clock.Clock
		rooms    Rooms
		observer Observer
		interval time.Duration

		mx    sync.Mutex
		conns map[string]Conn
	}

	Config struct {
		Logger        *zerolog.Logger
		Rooms         Rooms
		Clock         clock.Clock
		Observer      Observer
		ProbeInterval time.Duration
	}
)

func New(cfg Config) *Monitor {
	m := &Monitor{
		logger:   cfg.Logger.With().Str("component", "health-monitor").Logger(),
		clock:    cfg.Clock,
		rooms:    cfg.Rooms,
		observer: cfg.Observer,
		interval: cfg.ProbeInterval,
		conns:    make(map[string]Conn),
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.interval <= 0 {
		m.interval = defaultProbeInterval
	}
	return m
}

// Track registers a connection for probing. Connections are tracked from
// accept, whether or not they ever join a room.
func (m *Monitor) Track(conn Conn) {
	m.mx.Lock()
	m.conns[conn.ID()] = conn
	m.mx.Unlock()
}

// Untrack removes a connection from probing. Idempotent.
func (m *Monitor) Untrack(connID string) {
	m.mx.Lock()
	delete(m.conns, connID)
	m.mx.Unlock()
}

func (m *Monitor) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		m.logger.Debug().Msg("health monitor stopped")
		wg.Done()
	}()

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.interval).Msg("health monitor started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep iterates a snapshot of the tracked set so that connections may be
// tracked and untracked concurrently.
func (m *Monitor) sweep() {
	m.mx.Lock()
	snapshot := make([]Conn, 0, len(m.conns))
	for _, c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.mx.Unlock()

	for _, c := range snapshot {
		if !c.Alive() {
			m.evict(c)
			continue
		}
		c.ClearAlive()
		if err := c.Ping(); err != nil {
			m.logger.Debug().Err(err).Str("connID", c.ID()).Msg("probe send failed")
		}
	}
}

// evict is routine cleanup, not an error: it is logged but never escalated.
func (m *Monitor) evict(c Conn) {
	m.Untrack(c.ID())
	m.rooms.Leave(c.ID())
	if err := c.Close(); err != nil {
		m.logger.Debug().Err(err).Str("connID", c.ID()).Msg("close failed during eviction")
	}
	if m.observer != nil {
		m.observer.ConnectionEvicted()
	}
	m.logger.Info().Str("connID", c.ID()).Msg("evicted unresponsive connection")
}
