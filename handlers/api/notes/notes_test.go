package notes

import (
	"bytes"
	"collabnotes/core"
	"collabnotes/middleware"
	"collabnotes/stores/memory"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type stubLocator struct{}

func (stubLocator) Lookup(ctx context.Context) *core.GeoData {
	return &core.GeoData{IP: "127.0.0.1", City: "Localhost", Region: "Local", CountryName: "Local"}
}

// newTestRouter authenticates each request as the user named in X-Test-User.
func newTestRouter(store core.NoteStore) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUserID(req.Context(), req.Header.Get("X-Test-User"))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/notes", HandleListNotes(store))
	r.Post("/api/notes", HandleCreateNote(store, stubLocator{}))
	r.Get("/api/notes/{id}", HandleGetNote(store))
	r.Put("/api/notes/{id}", HandleUpdateNote(store))
	r.Delete("/api/notes/{id}", HandleDeleteNote(store))
	return r
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func message(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body["message"]
}

func createNote(t *testing.T, h http.Handler, user, body string) core.Note {
	t.Helper()
	rr := do(t, h, "POST", "/api/notes", user, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var note core.Note
	if err := json.Unmarshal(rr.Body.Bytes(), &note); err != nil {
		t.Fatalf("decode note: %v", err)
	}
	return note
}

func TestCreateNote(t *testing.T) {
	h := newTestRouter(memory.NewStore())

	note := createNote(t, h, "alice", `{"title":"  Plan  ","content":"body","isShared":true}`)
	if note.ID == "" || note.Title != "Plan" || note.OwnerID != "alice" || !note.IsShared {
		t.Errorf("created note = %+v", note)
	}
	if note.APIData == nil || note.APIData.City != "Localhost" {
		t.Errorf("apiData = %+v, want located", note.APIData)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	h := newTestRouter(memory.NewStore())
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing title", `{"content":"c"}`, `"title" is required`},
		{"missing content", `{"title":"t"}`, `"content" is required`},
		{"title too long", `{"title":"` + string(long) + `","content":"c"}`, `"title" length must be less than or equal to 200 characters long`},
		{"bad json", `{`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, "POST", "/api/notes", "alice", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if got := message(t, rr); got != tt.msg {
				t.Errorf("message = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestGetNote_Access(t *testing.T) {
	h := newTestRouter(memory.NewStore())
	private := createNote(t, h, "alice", `{"title":"p","content":"c"}`)
	shared := createNote(t, h, "alice", `{"title":"s","content":"c","isShared":true}`)

	if rr := do(t, h, "GET", "/api/notes/"+private.ID, "alice", ""); rr.Code != http.StatusOK {
		t.Errorf("owner get status = %d", rr.Code)
	}
	rr := do(t, h, "GET", "/api/notes/"+private.ID, "bob", "")
	if rr.Code != http.StatusForbidden || message(t, rr) != "Not authorized" {
		t.Errorf("stranger get = %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, "GET", "/api/notes/"+shared.ID, "bob", ""); rr.Code != http.StatusOK {
		t.Errorf("shared get status = %d", rr.Code)
	}
	rr = do(t, h, "GET", "/api/notes/missing", "alice", "")
	if rr.Code != http.StatusNotFound || message(t, rr) != "Note not found" {
		t.Errorf("missing get = %d %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateNote(t *testing.T) {
	h := newTestRouter(memory.NewStore())
	note := createNote(t, h, "alice", `{"title":"t","content":"c","isShared":true}`)

	rr := do(t, h, "PUT", "/api/notes/"+note.ID, "bob", `{"title":"hijack","content":"x"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("non-owner update status = %d, want 404", rr.Code)
	}
	if got := message(t, rr); got != "Note not found or not owner , If you  are not owner, you can edit note only with real time editor" {
		t.Errorf("message = %q", got)
	}

	rr = do(t, h, "PUT", "/api/notes/"+note.ID, "alice", `{"title":"t2","content":"c2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner update status = %d", rr.Code)
	}
	var updated core.Note
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.Title != "t2" || updated.IsShared {
		t.Errorf("updated = %+v, want title t2 and sharing off", updated)
	}
	if updated.APIData == nil || *updated.APIData != *note.APIData {
		t.Errorf("apiData changed on update: %+v", updated.APIData)
	}
}

func TestDeleteNote(t *testing.T) {
	h := newTestRouter(memory.NewStore())
	note := createNote(t, h, "alice", `{"title":"t","content":"c"}`)

	rr := do(t, h, "DELETE", "/api/notes/"+note.ID, "bob", "")
	if rr.Code != http.StatusNotFound || message(t, rr) != "Note not found or not owner" {
		t.Errorf("non-owner delete = %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, "DELETE", "/api/notes/"+note.ID, "alice", "")
	if rr.Code != http.StatusOK || message(t, rr) != "Note deleted" {
		t.Errorf("owner delete = %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, "GET", "/api/notes/"+note.ID, "alice", ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rr.Code)
	}
}

func TestListNotes_SearchAndVisibility(t *testing.T) {
	h := newTestRouter(memory.NewStore())
	createNote(t, h, "alice", `{"title":"Groceries","content":"milk"}`)
	createNote(t, h, "alice", `{"title":"Trip","content":"pack MILK","isShared":true}`)
	createNote(t, h, "bob", `{"title":"Bob's","content":"eggs"}`)

	rr := do(t, h, "GET", "/api/notes?search=milk", "bob", "")
	var notes []core.Note
	json.Unmarshal(rr.Body.Bytes(), &notes)
	if len(notes) != 1 || notes[0].Title != "Trip" {
		t.Errorf("bob search = %+v, want only the shared Trip", notes)
	}

	rr = do(t, h, "GET", "/api/notes?search=nothing", "bob", "")
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("empty search body = %q, want []", body)
	}
}

func TestSortNotes(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id, owner string, created, updated int) *core.Note {
		return &core.Note{
			ID:        id,
			OwnerID:   owner,
			CreatedAt: base.Add(time.Duration(created) * time.Hour),
			UpdatedAt: base.Add(time.Duration(updated) * time.Hour),
		}
	}
	ids := func(notes []*core.Note) []string {
		out := make([]string, len(notes))
		for i, n := range notes {
			out[i] = n.ID
		}
		return out
	}
	fresh := func() []*core.Note {
		return []*core.Note{
			mk("a", "me", 1, 5),
			mk("b", "other", 2, 9),
			mk("c", "me", 3, 7),
			mk("d", "other", 4, 1),
		}
	}

	tests := []struct {
		order string
		want  []string
	}{
		{"", []string{"d", "c", "b", "a"}},
		{"newest", []string{"d", "c", "b", "a"}},
		{"oldest", []string{"a", "b", "c", "d"}},
		{"ownership", []string{"c", "a", "b", "d"}},
	}
	for _, tt := range tests {
		notes := fresh()
		SortNotes(notes, tt.order, "me")
		got := ids(notes)
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("SortNotes(%q) = %v, want %v", tt.order, got, tt.want)
				break
			}
		}
	}
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleHealth(rr, httptest.NewRequest("GET", "/api/health", nil))
	if rr.Body.String() != "{\"status\":\"OK\"}\n" {
		t.Errorf("body = %q", rr.Body.String())
	}
}
