package core

import "testing"

func TestNoteFilterMatch(t *testing.T) {
	note := &Note{Title: "Weekly Plan", Content: "buy milk", OwnerID: "alice"}

	testCases := []struct {
		name   string
		filter NoteFilter
		want   bool
	}{
		{"owner sees own note", NoteFilter{VisibleTo: "alice"}, true},
		{"stranger cannot see private note", NoteFilter{VisibleTo: "bob"}, false},
		{"title search is case-insensitive", NoteFilter{VisibleTo: "alice", Search: "weekly"}, true},
		{"content search", NoteFilter{VisibleTo: "alice", Search: "MILK"}, true},
		{"search miss", NoteFilter{VisibleTo: "alice", Search: "eggs"}, false},
		{"empty filter", NoteFilter{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Match(note); got != tc.want {
				t.Errorf("Match() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSharedNoteVisibleToEveryone(t *testing.T) {
	note := &Note{OwnerID: "alice", IsShared: true}
	if !note.CanBeReadBy("bob") {
		t.Error("shared note should be readable by any user")
	}
}
