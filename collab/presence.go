package collab

import (
	"collabnotes/core"
	"collabnotes/metrics"
	"context"
	"sort"

	"github.com/sirupsen/logrus"
)

// unknownUsername stands in for ids the identity store could not resolve.
const unknownUsername = "unknown"

type IdentityResolver interface {
	ResolveIdentities(ctx context.Context, ids []string) ([]core.Identity, error)
}

// Broadcaster pushes presence rosters to the connections in a room.
type Broadcaster struct {
	registry   *Registry
	identities IdentityResolver
}

func NewBroadcaster(registry *Registry, identities IdentityResolver) *Broadcaster {
	return &Broadcaster{registry: registry, identities: identities}
}

// Broadcast sends the current roster of the note's room to all of its connections.
// Broadcasts for one room run one at a time and read membership after taking the room's
// turn, so a roster is never older than the mutation that triggered it.
func (b *Broadcaster) Broadcast(ctx context.Context, noteID string) RosterUpdate {
	rm := b.registry.room(noteID)
	rm.rosterMu.Lock()
	defer rm.rosterMu.Unlock()

	members, conns := b.registry.snapshot(noteID)
	update := RosterUpdate{NoteID: noteID, Users: b.resolve(ctx, noteID, members)}

	for _, c := range conns {
		if err := c.SendRoster(update); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"note_id": noteID,
				"conn_id": c.ID(),
			}).Warn("Failed to send roster")
		}
	}
	metrics.RosterBroadcasts.Inc()
	logrus.WithFields(logrus.Fields{"note_id": noteID, "users": len(update.Users)}).Debug("Roster broadcast")
	return update
}

func (b *Broadcaster) resolve(ctx context.Context, noteID string, ids []string) []core.Identity {
	users := make([]core.Identity, 0, len(ids))
	if len(ids) == 0 {
		return users
	}

	resolved, err := b.identities.ResolveIdentities(ctx, ids)
	if err != nil {
		logrus.WithError(err).WithField("note_id", noteID).Warn("Roster identities partially resolved")
	}
	byID := make(map[string]core.Identity, len(resolved))
	for _, identity := range resolved {
		byID[identity.ID] = identity
	}

	for _, id := range ids {
		identity, ok := byID[id]
		if !ok {
			identity = core.Identity{ID: id, Username: unknownUsername}
		}
		users = append(users, identity)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Username != users[j].Username {
			return users[i].Username < users[j].Username
		}
		return users[i].ID < users[j].ID
	})
	return users
}
