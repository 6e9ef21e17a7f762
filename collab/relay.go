package collab

import (
	"collabnotes/bus"
	"collabnotes/core"
	"collabnotes/metrics"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type ContentWriter interface {
	SetContent(ctx context.Context, id, content string) (*core.Note, error)
}

// Relay persists edits and forwards them to the other connections of the room.
type Relay struct {
	registry *Registry
	notes    ContentWriter
	bus      bus.Bus
}

func NewRelay(registry *Registry, notes ContentWriter, b bus.Bus) *Relay {
	if b == nil {
		b = bus.NewLocal()
	}
	return &Relay{registry: registry, notes: notes, bus: b}
}

// ApplyEdit stores content as the note's full body and relays it to every other
// connection in the room. Edits from connections outside the room return ErrNotMember.
// A failed write returns ErrPersistence and nothing is relayed.
func (r *Relay) ApplyEdit(ctx context.Context, conn Conn, noteID, content string) error {
	if !r.registry.IsMember(noteID, conn.ID()) {
		metrics.Edits.WithLabelValues("rejected").Inc()
		return fmt.Errorf("note %s: %w", noteID, core.ErrNotMember)
	}

	rm := r.registry.room(noteID)
	rm.editMu.Lock()
	defer rm.editMu.Unlock()

	note, err := r.notes.SetContent(ctx, noteID, content)
	if err != nil {
		metrics.Edits.WithLabelValues("failed").Inc()
		logrus.WithError(err).WithFields(logrus.Fields{
			"note_id": noteID,
			"user_id": conn.UserID(),
		}).Error("Failed to persist edit")
		return fmt.Errorf("note %s: %w: %v", noteID, core.ErrPersistence, err)
	}
	metrics.Edits.WithLabelValues("ok").Inc()

	update := NoteUpdate{NoteID: note.ID, Content: note.Content, UpdatedAt: note.UpdatedAt}
	if update.NoteID == "" {
		update.NoteID = noteID
	}
	r.Deliver(update, conn.ID())

	msg := bus.Message{NoteID: update.NoteID, Content: update.Content, UpdatedAt: update.UpdatedAt}
	if err := r.bus.Publish(ctx, msg); err != nil {
		logrus.WithError(err).WithField("note_id", noteID).Warn("Failed to publish edit to bus")
	}
	return nil
}

// Deliver sends update to the room's connections except exceptConnID.
func (r *Relay) Deliver(update NoteUpdate, exceptConnID string) {
	for _, peer := range r.registry.Peers(update.NoteID, exceptConnID) {
		if err := peer.SendNoteUpdate(update); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"note_id": update.NoteID,
				"conn_id": peer.ID(),
			}).Warn("Failed to relay edit")
		}
	}
}

// deliverRemote hands an edit persisted by another instance to the local room.
func (r *Relay) deliverRemote(msg bus.Message) {
	if len(r.registry.Peers(msg.NoteID, "")) == 0 {
		return
	}
	rm := r.registry.room(msg.NoteID)
	rm.editMu.Lock()
	defer rm.editMu.Unlock()

	r.Deliver(NoteUpdate{NoteID: msg.NoteID, Content: msg.Content, UpdatedAt: msg.UpdatedAt}, "")
}
