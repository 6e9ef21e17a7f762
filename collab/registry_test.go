package collab

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
)

func TestRegistry_RefCountsPerUser(t *testing.T) {
	r := NewRegistry()
	a1 := newFakeConn("a1", "alice")
	a2 := newFakeConn("a2", "alice")

	if !r.Join("n1", a1) {
		t.Error("first Join() should report a new membership")
	}
	if r.Join("n1", a1) {
		t.Error("repeated Join() on the same connection should be a no-op")
	}
	r.Join("n1", a2)

	if !r.Leave("n1", a1) {
		t.Error("Leave() of a member should report removal")
	}
	if got := r.Members("n1"); len(got) != 1 || got[0] != "alice" {
		t.Errorf("Members() = %v, want [alice]", got)
	}
	if r.Leave("n1", a1) {
		t.Error("second Leave() of the same connection should be a no-op")
	}

	r.Leave("n1", a2)
	if got := r.Members("n1"); len(got) != 0 {
		t.Errorf("Members() = %v, want none", got)
	}
}

func TestRegistry_RemoveFromAll(t *testing.T) {
	r := NewRegistry()
	a := newFakeConn("a", "alice")
	b := newFakeConn("b", "bob")
	r.Join("n2", a)
	r.Join("n1", a)
	r.Join("n1", b)
	r.Join("n3", b)

	affected := r.RemoveFromAll(a)
	if len(affected) != 2 || affected[0] != "n1" || affected[1] != "n2" {
		t.Errorf("RemoveFromAll() = %v, want [n1 n2]", affected)
	}
	if again := r.RemoveFromAll(a); len(again) != 0 {
		t.Errorf("second RemoveFromAll() = %v, want none", again)
	}
	if got := r.Members("n1"); len(got) != 1 || got[0] != "bob" {
		t.Errorf("Members(n1) = %v, want [bob]", got)
	}
}

func TestRegistry_Peers(t *testing.T) {
	r := NewRegistry()
	a := newFakeConn("a", "alice")
	b := newFakeConn("b", "bob")
	r.Join("n1", a)
	r.Join("n1", b)

	peers := r.Peers("n1", "a")
	if len(peers) != 1 || peers[0].ID() != "b" {
		t.Errorf("Peers() = %v, want [b]", peers)
	}
	if got := r.Peers("missing", ""); len(got) != 0 {
		t.Errorf("Peers() of unknown room = %v", got)
	}
}

func TestRegistry_Rooms(t *testing.T) {
	r := NewRegistry()
	r.Join("quiet", newFakeConn("q", "u1"))
	r.Join("busy", newFakeConn("b1", "u1"))
	r.Join("busy", newFakeConn("b2", "u2"))
	r.Join("also-quiet", newFakeConn("aq", "u3"))
	empty := newFakeConn("e", "u4")
	r.Join("empty", empty)
	r.Leave("empty", empty)

	rooms := r.Rooms()
	want := []RoomSummary{{"busy", 2}, {"also-quiet", 1}, {"quiet", 1}}
	if len(rooms) != len(want) {
		t.Fatalf("Rooms() = %v, want %v", rooms, want)
	}
	for i := range want {
		if rooms[i] != want[i] {
			t.Errorf("Rooms()[%d] = %v, want %v", i, rooms[i], want[i])
		}
	}
}

// Random join/leave/disconnect sequences must leave a user present exactly when one of
// their connections still holds an un-left membership.
func TestRegistry_MembershipMatchesActiveConnections(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []string{"alice", "bob", "carol"}
	notes := []string{"n1", "n2"}

	for round := 0; round < 200; round++ {
		r := NewRegistry()
		var conns []*fakeConn
		for i := 0; i < 6; i++ {
			conns = append(conns, newFakeConn(fmt.Sprintf("c%d", i), users[i%len(users)]))
		}
		active := make(map[string]map[string]bool) // note -> conn id -> joined

		for step := 0; step < 40; step++ {
			c := conns[rng.Intn(len(conns))]
			note := notes[rng.Intn(len(notes))]
			if active[note] == nil {
				active[note] = make(map[string]bool)
			}
			switch rng.Intn(3) {
			case 0:
				r.Join(note, c)
				active[note][c.id] = true
			case 1:
				r.Leave(note, c)
				delete(active[note], c.id)
			case 2:
				r.RemoveFromAll(c)
				for _, set := range active {
					delete(set, c.id)
				}
			}
		}

		for _, note := range notes {
			present := make(map[string]bool)
			for _, m := range r.Members(note) {
				present[m] = true
			}
			for _, user := range users {
				want := false
				for _, c := range conns {
					if c.userID == user && active[note][c.id] {
						want = true
					}
				}
				if present[user] != want {
					t.Fatalf("round %d: %s present in %s = %v, want %v", round, user, note, present[user], want)
				}
			}
		}
	}
}

func TestRegistry_LeaveAndRemoveFromAllRemoveOnce(t *testing.T) {
	for i := 0; i < 100; i++ {
		r := NewRegistry()
		c := newFakeConn("c", "alice")
		r.Join("n1", c)

		var wg sync.WaitGroup
		var left bool
		var affected []string
		wg.Add(2)
		go func() { defer wg.Done(); left = r.Leave("n1", c) }()
		go func() { defer wg.Done(); affected = r.RemoveFromAll(c) }()
		wg.Wait()

		removals := len(affected)
		if left {
			removals++
		}
		if removals != 1 {
			t.Fatalf("membership removed %d times, want exactly once", removals)
		}
	}
}
