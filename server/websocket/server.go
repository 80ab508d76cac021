package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/figpins/bridge/model"
	"github.com/figpins/bridge/monitor"
	"github.com/figpins/bridge/registry"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultWebsocketReadBufferSize   = 10000
	defaultWebsocketWriteBufferSize  = 10000
	defaultWebSocketMaxMessageSize   = 9000
	defaultWebSocketHandshakeTimeout = 3 * time.Second

	minRoomIDLength = 4
)

type (
	Rooms interface {
		Join(conn registry.Conn, roomID string)
		Leave(connID string)
	}

	Tracker interface {
		Track(conn monitor.Conn)
		Untrack(connID string)
	}

	Config struct {
		Logger  *zerolog.Logger
		Rooms   Rooms
		Tracker Tracker
	}

	// Server upgrades clients to websocket and serves join frames. Liveness
	// is owned by the central health monitor sweep, so connections carry no
	// read deadline; any inbound traffic re-marks them alive.
	Server struct {
		logger  zerolog.Logger
		rooms   Rooms
		tracker Tracker
		ws      *websocket.Upgrader
	}
)

func NewServer(cfg Config) *Server {
	return &Server{
		logger:  cfg.Logger.With().Str("component", "websocket-server").Logger(),
		rooms:   cfg.Rooms,
		tracker: cfg.Tracker,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			// the pairing code is the only access control
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and starts the connection's read loop.
func (srv *Server) Handle(w http.ResponseWriter, r *http.Request) {
	wsConn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(wsConn)
	srv.tracker.Track(conn)
	srv.logger.Debug().Str("connID", conn.ID()).Msg("client connected")

	go srv.readLoop(conn)
}

func (srv *Server) readLoop(conn *Conn) {
	logger := srv.logger.With().Str("connID", conn.ID()).Logger()

	defer func() {
		srv.tracker.Untrack(conn.ID())
		srv.rooms.Leave(conn.ID())
		_ = conn.Close()
		logger.Debug().Msg("client disconnected")
	}()

	conn.ws.SetReadLimit(defaultWebSocketMaxMessageSize)
	conn.ws.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		conn.markAlive()
		return nil
	})

	for {
		_, msg, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("connection closed")
			} else {
				logger.Warn().Err(err).Msg("unexpected error during receive")
			}
			return
		}
		conn.markAlive()
		srv.handleFrame(conn, msg, &logger)
	}
}

func (srv *Server) handleFrame(conn *Conn, msg []byte, logger *zerolog.Logger) {
	var frame model.JoinFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		logger.Warn().Err(err).Msg("failed to unmarshall incoming frame")
		return
	}
	if frame.Type != model.FrameTypeJoin {
		return
	}
	if len(frame.RoomID) < minRoomIDLength {
		srv.reply(conn, model.ErrorFrame{
			Type:  model.FrameTypeError,
			Error: "room id must be at least 4 characters",
		}, logger)
		return
	}

	srv.rooms.Join(conn, frame.RoomID)
	srv.reply(conn, model.JoinedFrame{
		Type:   model.FrameTypeJoined,
		RoomID: frame.RoomID,
	}, logger)
}

func (srv *Server) reply(conn *Conn, v any, logger *zerolog.Logger) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshall outgoing frame")
		return
	}
	if err = conn.Send(b); err != nil {
		logger.Warn().Err(err).Msg("failed to write outgoing frame")
	}
}
