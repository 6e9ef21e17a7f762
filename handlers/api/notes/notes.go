package notes

import (
	"collabnotes/core"
	"collabnotes/handlers/validate"
	"collabnotes/middleware"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Locator supplies the location attached to new notes.
type Locator interface {
	Lookup(ctx context.Context) *core.GeoData
}

type NoteRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required"`
	IsShared bool   `json:"isShared"`
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"message": message})
}

func decodeNoteRequest(w http.ResponseWriter, r *http.Request) (*NoteRequest, bool) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if msg := validate.Struct(req); msg != "" {
		writeMessage(w, r, http.StatusBadRequest, msg)
		return nil, false
	}
	return &req, true
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrInvalidID)
}

// SortNotes orders notes for the listing: "oldest" by creation ascending, "ownership" with
// the caller's notes first and the most recently updated first within each group, and
// anything else newest first.
func SortNotes(notes []*core.Note, order, userID string) {
	switch order {
	case "oldest":
		sort.SliceStable(notes, func(i, j int) bool {
			return notes[i].CreatedAt.Before(notes[j].CreatedAt)
		})
	case "ownership":
		sort.SliceStable(notes, func(i, j int) bool {
			iMine, jMine := notes[i].OwnerID == userID, notes[j].OwnerID == userID
			if iMine != jMine {
				return iMine
			}
			return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
		})
	default:
		sort.SliceStable(notes, func(i, j int) bool {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		})
	}
}

func HandleListNotes(store core.NoteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		query := r.URL.Query()

		notes, err := store.ListNotes(r.Context(), core.NoteFilter{
			VisibleTo: userID,
			Search:    query.Get("search"),
		})
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to list notes")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}

		// Return an empty array rather than null when nothing matches.
		if notes == nil {
			notes = []*core.Note{}
		}
		SortNotes(notes, query.Get("sort"), userID)
		render.JSON(w, r, notes)
	}
}

func HandleGetNote(store core.NoteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		id := chi.URLParam(r, "id")

		note, err := store.GetNote(r.Context(), id)
		if err != nil {
			if isNotFound(err) {
				writeMessage(w, r, http.StatusNotFound, "Note not found")
				return
			}
			logrus.WithError(err).WithField("note_id", id).Error("Failed to get note")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}
		if !note.CanBeReadBy(userID) {
			writeMessage(w, r, http.StatusForbidden, "Not authorized")
			return
		}
		render.JSON(w, r, note)
	}
}

func HandleCreateNote(store core.NoteStore, locator Locator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		req, ok := decodeNoteRequest(w, r)
		if !ok {
			return
		}

		note := &core.Note{
			Title:    req.Title,
			Content:  req.Content,
			IsShared: req.IsShared,
			OwnerID:  userID,
			APIData:  locator.Lookup(r.Context()),
		}
		if err := store.CreateNote(r.Context(), note); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to create note")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, note)
	}
}

// HandleUpdateNote lets the owner replace title, content and sharing. The location
// recorded at creation is kept.
func HandleUpdateNote(store core.NoteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		id := chi.URLParam(r, "id")
		req, ok := decodeNoteRequest(w, r)
		if !ok {
			return
		}

		updated, err := store.UpdateNote(r.Context(), userID, &core.Note{
			ID:       id,
			Title:    req.Title,
			Content:  req.Content,
			IsShared: req.IsShared,
		})
		if err != nil {
			if isNotFound(err) {
				writeMessage(w, r, http.StatusNotFound, "Note not found or not owner , If you  are not owner, you can edit note only with real time editor")
				return
			}
			logrus.WithError(err).WithField("note_id", id).Error("Failed to update note")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}
		render.JSON(w, r, updated)
	}
}

func HandleDeleteNote(store core.NoteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		id := chi.URLParam(r, "id")

		if err := store.DeleteNote(r.Context(), userID, id); err != nil {
			if isNotFound(err) {
				writeMessage(w, r, http.StatusNotFound, "Note not found or not owner")
				return
			}
			logrus.WithError(err).WithField("note_id", id).Error("Failed to delete note")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}
		logrus.WithFields(logrus.Fields{"note_id": id, "user_id": userID}).Info("Note deleted")
		render.JSON(w, r, map[string]string{"message": "Note deleted"})
	}
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "OK"})
}
