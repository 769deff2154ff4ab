// Package realtime delivers notifications over live WebSocket connections.
//
// A Registry maps each user ID to that user's open connections (a user may
// be connected from several devices). Each connection is served by its own
// goroutine, which registers it after a verified handshake, pushes the
// user's unread backlog, answers client messages, and unregisters it on
// close. Pushes from the notification send path fan out through the
// registry and are best-effort per connection: each connection is written
// concurrently, and one whose write fails or times out is closed. Delivery
// to a connected user is at-least-once: a notification stored while the
// connection is opening may appear both in the backlog and as a push (see
// Server.Serve).
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Server-to-client envelope types.
const (
	TypeNotifications   = "notifications"
	TypeNewNotification = "new_notification"
	TypeMarkedRead      = "marked_read"
	TypePong            = "pong"
	TypeError           = "error"
)

var (
	connectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Open live connections.",
	})
	pushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_push_total",
			Help: "Frames written to live connections by outcome.",
		},
		[]string{"outcome"},
	)
	handshakeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_handshakes_total",
			Help: "Live connection handshakes by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(connectionsGauge, pushTotal, handshakeTotal)
}

// Registry tracks open connections per user.
//
// This type is safe for concurrent use. Fan-out iterates over a copy of a
// user's connection set so that concurrent unregistration never races it.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint]map[*Conn]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint]map[*Conn]struct{})}
}

// Register adds c under its user.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	set, ok := r.conns[c.UserID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[c.UserID] = set
	}
	if _, dup := set[c]; !dup {
		set[c] = struct{}{}
		connectionsGauge.Inc()
	}
	r.mu.Unlock()
}

// Unregister removes c. A user left with no connections is dropped.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	if set, ok := r.conns[c.UserID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			connectionsGauge.Dec()
		}
		if len(set) == 0 {
			delete(r.conns, c.UserID)
		}
	}
	r.mu.Unlock()
}

// Connections returns a snapshot of userID's connections.
func (r *Registry) Connections(userID uint) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Users returns how many users have at least one connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Len returns the total number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// fanOutWorkers bounds concurrent socket writes per SendToUsers call.
const fanOutWorkers = 64

// SendToUsers serializes env once and writes it to every open connection of
// each user. Connections are written concurrently, so a stalled socket only
// costs its own write timeout; failures are logged and skipped. It returns
// how many users received the frame on at least one connection.
func (r *Registry) SendToUsers(ctx context.Context, userIDs []uint, env Envelope) int {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", env.Type).Msg("realtime: marshal envelope")
		return 0
	}

	var (
		mu      sync.Mutex
		reached = make(map[uint]struct{}, len(userIDs))
		g       errgroup.Group
	)
	g.SetLimit(fanOutWorkers)
	for _, uid := range userIDs {
		for _, c := range r.Connections(uid) {
			g.Go(func() error {
				if err := c.write(ctx, b); err != nil {
					pushTotal.WithLabelValues("failed").Inc()
					log.Debug().Err(err).Uint("user_id", c.UserID).Msg("realtime: push skipped")
					return nil
				}
				pushTotal.WithLabelValues("ok").Inc()
				mu.Lock()
				reached[c.UserID] = struct{}{}
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return len(reached)
}

// PublishNotification pushes a freshly stored notification to its
// connected recipients as a new_notification frame.
func (r *Registry) PublishNotification(ctx context.Context, userIDs []uint, n *domain.Notification) int {
	item := domain.UserNotification{
		Notification: *n,
		Status:       domain.StatusDelivered,
		DeliveredAt:  n.SentAt,
	}
	return r.SendToUsers(ctx, userIDs, Envelope{Type: TypeNewNotification, Data: item})
}

// CloseAll closes every registered connection concurrently and waits for the
// close handshakes. Session goroutines observe the close and unregister
// themselves.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	all := make([]*Conn, 0)
	for _, set := range r.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()
	var wg sync.WaitGroup
	for _, c := range all {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.close(statusGoingAway, reason)
		}(c)
	}
	wg.Wait()
}
