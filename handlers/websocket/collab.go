package websocket

import (
	"collabnotes/collab"
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const (
	eventJoin   = "joinNote"
	eventLeave  = "leaveNote"
	eventEdit   = "editNote"
	eventRoster = "activeUsers"
	eventUpdate = "noteUpdated"
	eventError  = "error"
)

type socketConn struct {
	socket *socketio.Socket
	userID string
}

func (c *socketConn) ID() string     { return string(c.socket.Id()) }
func (c *socketConn) UserID() string { return c.userID }

func (c *socketConn) SendRoster(u collab.RosterUpdate) error {
	if err := c.socket.Emit(eventRoster, u.Users); err != nil {
		return err
	}
	return c.socket.Emit("roster", u)
}

// noteUpdatedPayload mirrors the note document so clients can read `content` directly.
type noteUpdatedPayload struct {
	ID        string    `json:"_id"`
	NoteID    string    `json:"noteId"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *socketConn) SendNoteUpdate(u collab.NoteUpdate) error {
	return c.socket.Emit(eventUpdate, noteUpdatedPayload{
		ID:        u.NoteID,
		NoteID:    u.NoteID,
		Content:   u.Content,
		UpdatedAt: u.UpdatedAt,
	})
}

func (c *socketConn) SendError(message string) error {
	return c.socket.Emit(eventError, message)
}

// SetupSocketIO serves the collaboration protocol. Connections must present a token in the
// handshake; the user it names is bound to the connection until it closes.
func SetupSocketIO(ctx context.Context, hub *collab.Hub) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	srv.Use(func(socket *socketio.Socket, next func(*socketio.ExtendedError)) {
		handshake := socket.Handshake()
		token := handshakeToken(handshake.Auth, handshake.Headers, handshake.Query)
		userID, err := hub.Authenticate(token)
		if err != nil {
			logrus.WithError(err).WithField("conn_id", socket.Id()).Info("Rejected connection")
			next(socketio.NewExtendedError("Authentication error", nil))
			return
		}
		socket.SetData(userID)
		next(nil)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		userID, _ := socket.Data().(string)
		if userID == "" {
			socket.Disconnect(true)
			return
		}

		conn := &socketConn{socket: socket, userID: userID}
		session := hub.Connect(ctx, conn)

		socket.On(eventJoin, func(datas ...any) {
			ack, args := extractAck(datas)
			noteID, err := parseNoteID(args)
			if err != nil {
				ack.reply(err)
				_ = conn.SendError(err.Error())
				return
			}
			session.Join(noteID)
			ack.reply(nil)
		})

		socket.On(eventLeave, func(datas ...any) {
			ack, args := extractAck(datas)
			noteID, err := parseNoteID(args)
			if err != nil {
				ack.reply(err)
				return
			}
			session.Leave(noteID)
			ack.reply(nil)
		})

		socket.On(eventEdit, func(datas ...any) {
			ack, args := extractAck(datas)
			noteID, content, err := parseEdit(args)
			if err != nil {
				ack.reply(err)
				_ = conn.SendError(err.Error())
				return
			}
			session.Edit(noteID, content)
			ack.reply(nil)
		})

		socket.On("disconnect", func(datas ...any) {
			session.Disconnect()
		})
	})

	return srv
}

// handshakeToken takes the credential from auth.token, then an Authorization header, then
// a token query parameter.
func handshakeToken(auth, headers, query any) string {
	if token := lookupString(auth, "token"); token != "" {
		return token
	}
	if header := lookupString(headers, "authorization"); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return header[7:]
		}
	}
	return lookupString(query, "token")
}

// lookupString reads key from a string-keyed map whose values are strings or string lists.
// Header keys are matched case-insensitively.
func lookupString(m any, key string) string {
	v := reflect.ValueOf(m)
	if !v.IsValid() || v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return ""
	}
	iter := v.MapRange()
	for iter.Next() {
		if !strings.EqualFold(iter.Key().String(), key) {
			continue
		}
		return firstString(iter.Value())
	}
	return ""
}

func firstString(v reflect.Value) string {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Slice:
		if v.Len() > 0 {
			return firstString(v.Index(0))
		}
	}
	return ""
}

func parseNoteID(args []any) (string, error) {
	if len(args) == 0 {
		return "", errors.New("Note ID is required")
	}
	switch id := args[0].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case map[string]any:
		if s, ok := id["noteId"].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", errors.New("Invalid note ID")
}

func parseEdit(args []any) (string, string, error) {
	if len(args) == 0 {
		return "", "", errors.New("Edit payload is required")
	}
	payload, ok := args[0].(map[string]any)
	if !ok {
		return "", "", errors.New("Invalid edit payload")
	}
	noteID, _ := payload["noteId"].(string)
	if noteID == "" {
		return "", "", errors.New("Note ID is required")
	}
	content, ok := payload["content"].(string)
	if !ok {
		return "", "", errors.New("Content must be a string")
	}
	return noteID, content, nil
}

// ackFunc calls a client acknowledgement callback, whatever its Go signature.
type ackFunc func(payload map[string]any)

func (a ackFunc) reply(err error) {
	if a == nil {
		return
	}
	if err != nil {
		a(map[string]any{"status": "error", "error": err.Error()})
		return
	}
	a(map[string]any{"status": "ok"})
}

func extractAck(datas []any) (ackFunc, []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	fn := reflect.ValueOf(datas[len(datas)-1])
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, datas
	}

	typ := fn.Type()
	ack := func(payload map[string]any) {
		args := make([]reflect.Value, typ.NumIn())
		for i := range args {
			param := typ.In(i)
			switch {
			case param.Kind() == reflect.Slice && param.Elem().Kind() == reflect.Interface:
				args[i] = reflect.ValueOf([]any{payload}).Convert(param)
			case i == 0 && reflect.TypeOf(payload).AssignableTo(param):
				args[i] = reflect.ValueOf(payload)
			default:
				args[i] = reflect.Zero(param)
			}
		}
		if typ.IsVariadic() {
			fn.CallSlice(args)
			return
		}
		fn.Call(args)
	}
	return ack, datas[:len(datas)-1]
}
