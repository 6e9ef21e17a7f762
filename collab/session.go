package collab

import (
	"collabnotes/core"
	"collabnotes/metrics"
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateIdle State = iota
	StateInRoom
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInRoom:
		return "in-room"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventEdit
	eventDisconnect
	eventSync
)

type event struct {
	kind    eventKind
	noteID  string
	content string
	done    chan struct{}
}

const sessionQueueSize = 64

// Session drives one authenticated connection. Events are queued and handled one at a
// time by the session's own goroutine, which alone touches the joined-rooms set.
type Session struct {
	hub  *Hub
	conn Conn
	ctx  context.Context

	events     chan event
	terminated chan struct{}
	state      atomic.Int32

	rooms map[string]struct{}
	log   *logrus.Entry
}

func newSession(ctx context.Context, hub *Hub, conn Conn) *Session {
	return &Session{
		hub:        hub,
		conn:       conn,
		ctx:        ctx,
		events:     make(chan event, sessionQueueSize),
		terminated: make(chan struct{}),
		rooms:      make(map[string]struct{}),
		log: logrus.WithFields(logrus.Fields{
			"conn_id": conn.ID(),
			"user_id": conn.UserID(),
		}),
	}
}

func (s *Session) Join(noteID string) { s.submit(event{kind: eventJoin, noteID: noteID}) }

func (s *Session) Leave(noteID string) { s.submit(event{kind: eventLeave, noteID: noteID}) }

func (s *Session) Edit(noteID, content string) {
	s.submit(event{kind: eventEdit, noteID: noteID, content: content})
}

// Disconnect ends the session. Every room the connection joined is left exactly once.
func (s *Session) Disconnect() { s.submit(event{kind: eventDisconnect}) }

// Done is closed once the session has terminated and its rooms have been told.
func (s *Session) Done() <-chan struct{} { return s.terminated }

func (s *Session) State() State { return State(s.state.Load()) }

// sync waits until every event queued before it has been handled.
func (s *Session) sync() {
	done := make(chan struct{})
	if s.submit(event{kind: eventSync, done: done}) {
		select {
		case <-done:
		case <-s.terminated:
		}
	}
}

func (s *Session) submit(ev event) bool {
	select {
	case <-s.terminated:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.terminated:
		return false
	}
}

func (s *Session) run() {
	metrics.ConnectedSockets.Inc()
	defer metrics.ConnectedSockets.Dec()

	for ev := range s.events {
		switch ev.kind {
		case eventJoin:
			s.handleJoin(ev.noteID)
		case eventLeave:
			s.handleLeave(ev.noteID)
		case eventEdit:
			s.handleEdit(ev.noteID, ev.content)
		case eventSync:
			close(ev.done)
		case eventDisconnect:
			s.handleDisconnect()
			return
		}
	}
}

func (s *Session) setState() {
	if len(s.rooms) > 0 {
		s.state.Store(int32(StateInRoom))
	} else {
		s.state.Store(int32(StateIdle))
	}
}

func (s *Session) handleJoin(noteID string) {
	log := s.log.WithField("note_id", noteID)
	if noteID == "" {
		_ = s.conn.SendError("Note ID is required")
		return
	}

	if !s.hub.access.CanJoin(s.ctx, noteID, s.conn.UserID()) {
		metrics.Joins.WithLabelValues("forbidden").Inc()
		log.Info("Join denied")
		if err := s.conn.SendError("Not authorized to join this note"); err != nil {
			log.WithError(err).Warn("Failed to send join error")
		}
		return
	}

	s.hub.registry.Join(noteID, s.conn)
	s.rooms[noteID] = struct{}{}
	s.setState()
	metrics.Joins.WithLabelValues("ok").Inc()
	log.Info("Joined note")

	s.hub.broadcaster.Broadcast(s.ctx, noteID)
}

func (s *Session) handleLeave(noteID string) {
	delete(s.rooms, noteID)
	s.setState()

	if !s.hub.registry.Leave(noteID, s.conn) {
		s.log.WithField("note_id", noteID).Debug("Leave for a note not joined")
		return
	}
	s.log.WithField("note_id", noteID).Info("Left note")
	s.hub.broadcaster.Broadcast(s.ctx, noteID)
}

func (s *Session) handleEdit(noteID, content string) {
	err := s.hub.relay.ApplyEdit(s.ctx, s.conn, noteID, content)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotMember):
		s.log.WithField("note_id", noteID).Warn("Edit from a connection outside the room")
		_ = s.conn.SendError("Join the note before editing it")
	case errors.Is(err, core.ErrPersistence):
		// Logged by the relay. The editor keeps its local buffer.
	default:
		s.log.WithError(err).WithField("note_id", noteID).Error("Edit failed")
	}
}

func (s *Session) handleDisconnect() {
	affected := s.hub.registry.RemoveFromAll(s.conn)
	s.rooms = make(map[string]struct{})
	s.state.Store(int32(StateTerminated))

	for _, noteID := range affected {
		s.hub.broadcaster.Broadcast(s.ctx, noteID)
	}
	close(s.terminated)
	s.log.WithField("rooms", len(affected)).Info("Connection closed")
}
