package rooms

import (
	"collabnotes/collab"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

type stubLister []collab.RoomSummary

func (s stubLister) Rooms() []collab.RoomSummary { return s }

func TestHandleListRooms(t *testing.T) {
	h := HandleListRooms(stubLister{{ID: "n1", Users: 3}, {ID: "n2", Users: 1}})

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest("GET", "/api/rooms", nil))

	var got []collab.RoomSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "n1" || got[0].Users != 3 {
		t.Errorf("rooms = %+v", got)
	}
}

func TestHandleListRooms_EmptyIsArray(t *testing.T) {
	h := HandleListRooms(collab.NewRegistry())

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest("GET", "/api/rooms", nil))

	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}
