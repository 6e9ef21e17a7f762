package collab

import (
	"collabnotes/bus"
	"context"

	"github.com/sirupsen/logrus"
)

// Store is what the collaboration layer needs from persistence.
type Store interface {
	NoteGetter
	ContentWriter
	IdentityResolver
}

// Hub wires the collaboration components together. One hub serves the whole process.
type Hub struct {
	registry    *Registry
	auth        *Authenticator
	access      *AccessChecker
	broadcaster *Broadcaster
	relay       *Relay
	bus         bus.Bus
}

func NewHub(registry *Registry, store Store, verifier TokenVerifier, b bus.Bus) *Hub {
	if b == nil {
		b = bus.NewLocal()
	}
	return &Hub{
		registry:    registry,
		auth:        NewAuthenticator(verifier),
		access:      NewAccessChecker(store),
		broadcaster: NewBroadcaster(registry, store),
		relay:       NewRelay(registry, store, b),
		bus:         b,
	}
}

// Start subscribes to edits persisted by other instances.
func (h *Hub) Start(ctx context.Context) error {
	return h.bus.Subscribe(ctx, h.relay.deliverRemote)
}

// Authenticate verifies a handshake credential. See Authenticator.
func (h *Hub) Authenticate(token string) (string, error) {
	return h.auth.Authenticate(token)
}

// Connect starts a session for an authenticated connection.
func (h *Hub) Connect(ctx context.Context, conn Conn) *Session {
	s := newSession(ctx, h, conn)
	go s.run()
	logrus.WithFields(logrus.Fields{"conn_id": conn.ID(), "user_id": conn.UserID()}).Info("Connection admitted")
	return s
}

func (h *Hub) Rooms() []RoomSummary {
	return h.registry.Rooms()
}

func (h *Hub) Registry() *Registry {
	return h.registry
}
