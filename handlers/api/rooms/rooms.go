package rooms

import (
	"collabnotes/collab"
	"net/http"

	"github.com/go-chi/render"
)

type Lister interface {
	Rooms() []collab.RoomSummary
}

// HandleListRooms lists the notes currently being edited live, busiest first.
func HandleListRooms(rooms Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, rooms.Rooms())
	}
}
