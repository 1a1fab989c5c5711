package domain

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func newTestLobby(max int) *Lobby {
	now := time.Unix(0, 0)
	host := NewPlayer("p0", Profile{DisplayName: "Host"}, now)
	return NewLobby("ABC123", host, Settings{MaxPlayers: max}, now)
}

func hostCount(l *Lobby) int {
	n := 0
	for _, p := range l.Players {
		if p.IsHost {
			n++
		}
	}
	return n
}

func TestLobbyAddRespectsMaxPlayers(t *testing.T) {
	l := newTestLobby(2)
	if err := l.Add(NewPlayer("p1", Profile{}, time.Now())); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.Add(NewPlayer("p2", Profile{}, time.Now())); err != ErrLobbyFull {
		t.Fatalf("expected ErrLobbyFull, got %v", err)
	}
	if len(l.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(l.Players))
	}
}

func TestLobbyRemoveHostPromotesNextJoined(t *testing.T) {
	l := newTestLobby(4)
	_ = l.Add(NewPlayer("p1", Profile{}, time.Now()))
	_ = l.Add(NewPlayer("p2", Profile{}, time.Now()))

	l.Remove("p0")
	if l.HostID != "p1" {
		t.Fatalf("expected p1 to be host, got %s", l.HostID)
	}
	if hostCount(l) != 1 {
		t.Fatalf("expected exactly one host, got %d", hostCount(l))
	}
}

func TestMigrateHostSkipsDisconnectedPlayers(t *testing.T) {
	l := newTestLobby(4)
	_ = l.Add(NewPlayer("p1", Profile{}, time.Now()))
	_ = l.Add(NewPlayer("p2", Profile{}, time.Now()))
	l.Players[0].ConnectionState = GracePeriod
	l.Players[1].ConnectionState = GracePeriod

	host, changed := l.MigrateHost()
	if !changed || host != "p2" {
		t.Fatalf("expected migration to p2, got %s changed=%v", host, changed)
	}
	if !l.Players[2].IsHost || l.Players[0].IsHost {
		t.Fatalf("host flags not updated: %+v", l.PlayerViews())
	}
}

func TestMigrateHostKeepsHostWhenNobodyConnected(t *testing.T) {
	l := newTestLobby(4)
	_ = l.Add(NewPlayer("p1", Profile{}, time.Now()))
	for _, p := range l.Players {
		p.ConnectionState = GracePeriod
	}
	host, changed := l.MigrateHost()
	if changed || host != "p0" {
		t.Fatalf("expected host to stay p0, got %s changed=%v", host, changed)
	}
}

func TestRosterInvariantsUnderRandomJoinLeave(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	l := newTestLobby(5)
	next := 1
	for i := 0; i < 2000; i++ {
		switch rnd.Intn(3) {
		case 0, 1:
			_ = l.Add(NewPlayer(fmt.Sprintf("p%d", next), Profile{}, time.Now()))
			next++
		case 2:
			if len(l.Players) > 0 {
				l.Remove(l.Players[rnd.Intn(len(l.Players))].ID)
			}
		}
		if len(l.Players) > l.Settings.MaxPlayers {
			t.Fatalf("roster exceeded max: %d", len(l.Players))
		}
		if len(l.Players) > 0 && hostCount(l) != 1 {
			t.Fatalf("expected one host, got %d at step %d", hostCount(l), i)
		}
		if len(l.Players) == 0 {
			_ = l.Add(NewPlayer(fmt.Sprintf("p%d", next), Profile{}, time.Now()))
			next++
			l.MigrateHost()
		}
	}
}
