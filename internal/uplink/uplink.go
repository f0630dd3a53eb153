// Package uplink provides the ground-station link: a WebSocket push of
// live telemetry, and a JWT-authenticated command channel carrying ARM and
// DISARM, resolving the FSM's two external-input points (the ARMED
// entry-gate and the LANDED-to-recovered disarm). Grounded on the teacher's
// internal/livefeed/streamer.go for the gorilla/websocket client-registry
// and broadcast-channel shape; the JWT verification is adopted from the
// teacher's go.mod (golang-jwt/jwt/v5 was declared there but never
// imported by any Valkyrie source file).
package uplink

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// CommandKind is the uplinked ground-station command type.
type CommandKind string

const (
	CommandArm    CommandKind = "ARM"
	CommandDisarm CommandKind = "DISARM"
)

// Command is a decoded, authenticated uplink command.
type Command struct {
	Kind     CommandKind
	Subject  string
	Seq      int64
	IssuedAt time.Time
}

// TelemetryFrame is the JSON payload pushed to every connected client.
type TelemetryFrame struct {
	Timestamp    time.Time `json:"timestamp"`
	State        string    `json:"state"`
	Altitude     float64   `json:"altitude_m"`
	Velocity     float64   `json:"velocity_mps"`
	AccMagnitude float64   `json:"acc_magnitude"`
	PressureHPa  float64   `json:"pressure_hpa"`
	CPUTempC     float64   `json:"cpu_temp_c"`
}

// Server streams TelemetryFrames to WebSocket clients and authenticates
// inbound ARM/DISARM commands against an HMAC-signed JWT.
type Server struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
	secret   []byte
	commands chan Command
	logger   *logrus.Logger

	seqMu   sync.Mutex
	lastSeq map[string]int64 // highest accepted Seq per issuer, rejects replay/reorder
}

type client struct {
	conn *websocket.Conn
	send chan TelemetryFrame
}

// New constructs a Server. secret is the HMAC key used to verify the
// "token" query parameter or Authorization header bearer token on the
// command endpoint; the telemetry WebSocket upgrade is not authenticated.
func New(secret []byte, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		secret:   secret,
		commands: make(chan Command, 16),
		logger:   logger,
		lastSeq:  make(map[string]int64),
	}
}

// Commands returns the channel authenticated ARM/DISARM commands arrive on.
func (s *Server) Commands() <-chan Command { return s.commands }

// HandleTelemetry upgrades the connection and registers it for broadcast.
func (s *Server) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("uplink: websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan TelemetryFrame, 8)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writePump(c)
}

func (s *Server) writePump(c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.conn.Close()
	}()

	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Broadcast pushes frame to every connected client, dropping the frame for
// any client whose send buffer is full rather than blocking the caller.
func (s *Server) Broadcast(frame TelemetryFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
		}
	}
}

// HandleCommand authenticates the bearer token in the request, checks its
// seq claim against the issuer's last-accepted sequence number, and, if
// both hold, decodes a {"kind":"ARM"|"DISARM"} body and pushes it to
// Commands.
func (s *Server) HandleCommand(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verify(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	subject, _ := claims.GetSubject()
	mapClaims, _ := claims.(jwt.MapClaims)
	seq, err := seqClaim(mapClaims)
	if err != nil {
		http.Error(w, "missing or invalid seq claim", http.StatusBadRequest)
		return
	}
	if !s.acceptSeq(subject, seq) {
		http.Error(w, "stale or replayed sequence number", http.StatusConflict)
		return
	}

	var body struct {
		Kind CommandKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if body.Kind != CommandArm && body.Kind != CommandDisarm {
		http.Error(w, "unknown command kind", http.StatusBadRequest)
		return
	}

	cmd := Command{Kind: body.Kind, Subject: subject, Seq: seq, IssuedAt: time.Now()}
	select {
	case s.commands <- cmd:
	default:
		s.logger.Warn("uplink: command channel full, dropping command")
	}
	w.WriteHeader(http.StatusAccepted)
}

// seqClaim extracts the numeric "seq" claim JWT's MapClaims decodes as a
// float64.
func seqClaim(claims jwt.MapClaims) (int64, error) {
	raw, ok := claims["seq"]
	if !ok {
		return 0, jwt.ErrTokenInvalidClaims
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, jwt.ErrTokenInvalidClaims
	}
	return int64(f), nil
}

// acceptSeq reports whether seq is strictly greater than the last seq
// accepted from subject, and if so records it, rejecting replayed or
// reordered commands from the same issuer.
func (s *Server) acceptSeq(subject string, seq int64) bool {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if seq <= s.lastSeq[subject] {
		return false
	}
	s.lastSeq[subject] = seq
	return true
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (s *Server) verify(token string) (jwt.Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
