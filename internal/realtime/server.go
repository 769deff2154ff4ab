package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-club-backend/internal/audience"
	"github.com/tbourn/go-club-backend/internal/auth"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/services"
)

const (
	statusGoingAway = websocket.StatusGoingAway

	defaultHandshakeTimeout = 10 * time.Second
	defaultBacklogLimit     = 50
	readLimit               = 64 << 10
)

// Inbox is the per-user notification view served over a live connection.
type Inbox interface {
	Backlog(ctx context.Context, userID uint, limit int) ([]domain.UserNotification, error)
	MarkRead(ctx context.Context, userID, notificationID uint) error
}

// TokenVerifier checks a handshake bearer token.
type TokenVerifier interface {
	VerifyBearer(ctx context.Context, token string) (*auth.UserIdentity, error)
}

// Server upgrades authenticated requests into live connections and runs one
// session goroutine per connection.
type Server struct {
	Registry *Registry
	Inbox    Inbox
	Verifier TokenVerifier

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	BacklogLimit     int
	OriginPatterns   []string
}

// clientMessage is a frame sent by the client.
type clientMessage struct {
	Type           string         `json:"type"`
	NotificationID audience.RawID `json:"notificationId"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ServeHTTP verifies the token query parameter, upgrades the request and
// serves the connection until it closes. Requests that fail verification are
// refused before the upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		handshakeTotal.WithLabelValues("missing_token").Inc()
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized", auth.ReasonAuthRequired)
		return
	}

	id, err := s.Handshake(r.Context(), token)
	if err != nil {
		var ce *auth.CredentialError
		switch {
		case errors.As(err, &ce):
			handshakeTotal.WithLabelValues("rejected").Inc()
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized", ce.Reason)
		case errors.Is(err, context.DeadlineExceeded):
			handshakeTotal.WithLabelValues("timeout").Inc()
			writeJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "handshake timed out")
		default:
			handshakeTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Msg("realtime: handshake verification failed")
			writeJSONError(w, http.StatusInternalServerError, "Internal Server Error", "handshake failed")
		}
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.OriginPatterns})
	if err != nil {
		// Accept has already written the HTTP error.
		handshakeTotal.WithLabelValues("upgrade_failed").Inc()
		log.Debug().Err(err).Msg("realtime: upgrade failed")
		return
	}
	ws.SetReadLimit(readLimit)
	handshakeTotal.WithLabelValues("ok").Inc()

	// The request context ends when the handler returns, which is exactly
	// the lifetime of the session.
	s.Serve(r.Context(), newConn(id.UserID, ws, s.WriteTimeout))
}

// Handshake verifies token within the handshake timeout.
func (s *Server) Handshake(ctx context.Context, token string) (*auth.UserIdentity, error) {
	d := s.HandshakeTimeout
	if d <= 0 {
		d = defaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return s.Verifier.VerifyBearer(ctx, token)
}

// Serve opens c, registers it, pushes the backlog and answers client frames
// until the transport fails or ctx ends. It always leaves c closed and
// unregistered.
//
// Registering before the backlog is loaded means no notification stored
// during the handshake is missed. The price is that one committed in that
// window can arrive twice, in the notifications backlog and as a
// new_notification frame; clients dedupe by notification id.
func (s *Server) Serve(ctx context.Context, c *Conn) {
	if !c.open() {
		c.close(websocket.StatusPolicyViolation, "connection not verified")
		return
	}
	s.Registry.Register(c)
	defer func() {
		s.Registry.Unregister(c)
		c.close(websocket.StatusNormalClosure, "")
	}()

	logger := log.With().Uint("user_id", c.UserID).Logger()
	logger.Debug().Msg("realtime: connection open")

	s.sendBacklog(ctx, c)

	for {
		_, data, err := c.t.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				logger.Debug().Err(err).Msg("realtime: read ended")
			}
			return
		}
		s.handle(ctx, c, data)
	}
}

func (s *Server) handle(ctx context.Context, c *Conn, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(ctx, c, Envelope{Type: TypeError, Data: "invalid message"})
		return
	}

	switch msg.Type {
	case "ping":
		s.reply(ctx, c, Envelope{Type: TypePong})
	case "get_notifications":
		s.sendBacklog(ctx, c)
	case "mark_read":
		ids := audience.ParseIDs([]audience.RawID{msg.NotificationID})
		if len(ids) == 0 {
			s.reply(ctx, c, Envelope{Type: TypeError, Data: "notificationId is required"})
			return
		}
		if err := s.Inbox.MarkRead(ctx, c.UserID, ids[0]); err != nil {
			if errors.Is(err, services.ErrNotificationNotFound) {
				s.reply(ctx, c, Envelope{Type: TypeError, Data: "notification not found"})
				return
			}
			log.Error().Err(err).Uint("user_id", c.UserID).Uint("notification_id", ids[0]).Msg("realtime: mark read")
			s.reply(ctx, c, Envelope{Type: TypeError, Data: "failed to mark notification as read"})
			return
		}
		s.reply(ctx, c, Envelope{Type: TypeMarkedRead, Data: map[string]uint{"notificationId": ids[0]}})
	default:
		s.reply(ctx, c, Envelope{Type: TypeError, Data: "unknown message type"})
	}
}

func (s *Server) sendBacklog(ctx context.Context, c *Conn) {
	limit := s.BacklogLimit
	if limit <= 0 {
		limit = defaultBacklogLimit
	}
	items, err := s.Inbox.Backlog(ctx, c.UserID, limit)
	if err != nil {
		log.Error().Err(err).Uint("user_id", c.UserID).Msg("realtime: load backlog")
		s.reply(ctx, c, Envelope{Type: TypeError, Data: "failed to load notifications"})
		return
	}
	if items == nil {
		items = []domain.UserNotification{}
	}
	s.reply(ctx, c, Envelope{Type: TypeNotifications, Data: items})
}

func (s *Server) reply(ctx context.Context, c *Conn, env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", env.Type).Msg("realtime: marshal reply")
		return
	}
	if err := c.write(ctx, b); err != nil {
		log.Debug().Err(err).Uint("user_id", c.UserID).Msg("realtime: reply dropped")
	}
}

func writeJSONError(w http.ResponseWriter, code int, errText, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errText, Message: msg})
}
