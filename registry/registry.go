package registry

import (
	"sync"

	"github.com/rs/zerolog"
)

// Conn is the registry's view of a live client connection.
type Conn interface {
	ID() string
	Send(frame []byte) error
}

// Registry maps room ids to the set of live connections subscribed to them.
// Rooms are created lazily on first join and deleted when their last member
// leaves. State is purely in-memory.
//
// A connection belongs to at most one room at a time; joining a new room
// implicitly leaves the previous one.
type Registry struct {
	logger zerolog.Logger
	mx     *sync.Mutex
	rooms  map[string]map[string]Conn
	member map[string]string // connection id -> room id
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "registry").Logger(),
		mx:     &sync.Mutex{},
		rooms:  make(map[string]map[string]Conn),
		member: make(map[string]string),
	}
}

// Join adds conn to roomID, removing it from any prior room first. Room ids
// are treated as opaque strings; format validation happens at the gateway.
func (r *Registry) Join(conn Conn, roomID string) {
	r.mx.Lock()
	r.detach(conn.ID())
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[roomID] = room
	}
	room[conn.ID()] = conn
	r.member[conn.ID()] = roomID
	r.mx.Unlock()

	r.logger.Debug().
		Str("connID", conn.ID()).
		Str("roomID", roomID).
		Msg("connection joined room")
}

// Leave removes the connection from its current room. It is a no-op for
// connections not in any room.
func (r *Registry) Leave(connID string) {
	r.mx.Lock()
	roomID, ok := r.member[connID]
	r.detach(connID)
	r.mx.Unlock()

	if ok {
		r.logger.Debug().
			Str("connID", connID).
			Str("roomID", roomID).
			Msg("connection left room")
	}
}

// detach must be called with the lock held.
func (r *Registry) detach(connID string) {
	roomID, ok := r.member[connID]
	if !ok {
		return
	}
	delete(r.member, connID)
	room := r.rooms[roomID]
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
}

// Broadcast sends frame to every connection currently in roomID and returns
// the number of successful deliveries. Members whose send fails are treated
// as implicitly left and cleaned up. Returns 0 when the room does not exist.
//
// The member set is snapshotted under the lock and sends happen outside it,
// so a slow socket never blocks joins, leaves, or other broadcasts.
func (r *Registry) Broadcast(roomID string, frame []byte) int {
	r.mx.Lock()
	room := r.rooms[roomID]
	members := make([]Conn, 0, len(room))
	for _, c := range room {
		members = append(members, c)
	}
	r.mx.Unlock()

	var delivered int
	for _, c := range members {
		if err := c.Send(frame); err != nil {
			r.logger.Debug().
				Err(err).
				Str("connID", c.ID()).
				Str("roomID", roomID).
				Msg("send failed, dropping member")
			r.Leave(c.ID())
			continue
		}
		delivered++
	}

	r.logger.Debug().
		Str("roomID", roomID).
		Int("delivered", delivered).
		Msg("broadcast")
	return delivered
}

// Clients returns the number of connections currently in roomID.
func (r *Registry) Clients(roomID string) int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.rooms[roomID])
}

// Stats returns the current number of rooms and joined connections.
func (r *Registry) Stats() (rooms, conns int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.rooms), len(r.member)
}
