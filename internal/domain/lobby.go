package domain

import "time"

// Lobby is a joinable group of players identified by a short code.
// Players are kept in join order; exactly one of them is host while the
// lobby is non-empty.
type Lobby struct {
	Code      string
	HostID    string
	Status    LobbyStatus
	Settings  Settings
	CreatedAt time.Time
	Players   []*Player
}

// NewLobby creates a waiting lobby whose first member is the host.
func NewLobby(code string, host *Player, settings Settings, now time.Time) *Lobby {
	host.IsHost = true
	host.IsReady = true
	return &Lobby{
		Code:      code,
		HostID:    host.ID,
		Status:    LobbyWaiting,
		Settings:  settings,
		CreatedAt: now,
		Players:   []*Player{host},
	}
}

// NewPlayer builds a connected player with neutral scoring state.
func NewPlayer(id string, profile Profile, now time.Time) *Player {
	return &Player{
		ID:              id,
		DisplayName:     profile.DisplayName,
		Character:       profile.Character,
		Multiplier:      1,
		ConnectionState: Connected,
		JoinedAt:        now,
		LastActivityAt:  now,
	}
}

// Member returns the player with the given id and its roster index.
func (l *Lobby) Member(id string) (*Player, int) {
	for i, p := range l.Players {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

// Host returns the current host, or nil for an empty lobby.
func (l *Lobby) Host() *Player {
	p, _ := l.Member(l.HostID)
	return p
}

// Full reports whether another player would exceed MaxPlayers.
func (l *Lobby) Full() bool {
	return l.Settings.MaxPlayers > 0 && len(l.Players) >= l.Settings.MaxPlayers
}

// Add appends a player. It returns ErrLobbyFull when no slot is free.
func (l *Lobby) Add(p *Player) error {
	if l.Full() {
		return ErrLobbyFull
	}
	p.IsHost = false
	l.Players = append(l.Players, p)
	return nil
}

// Remove drops a player from the roster. If the host left, the host role
// moves to the next eligible player. It reports whether the player was present.
func (l *Lobby) Remove(id string) bool {
	_, idx := l.Member(id)
	if idx < 0 {
		return false
	}
	wasHost := l.Players[idx].IsHost
	l.Players = append(l.Players[:idx], l.Players[idx+1:]...)
	if len(l.Players) == 0 {
		l.HostID = ""
		return true
	}
	if wasHost {
		// idx now points at the player who joined right after the old host.
		l.assignHost(l.pickHost(idx))
	}
	return true
}

// MigrateHost moves the host role to the next-joined connected player after
// the current host, wrapping around the roster. It returns the new host id and
// whether the host changed. Nothing changes when no other player is connected.
func (l *Lobby) MigrateHost() (string, bool) {
	_, idx := l.Member(l.HostID)
	if idx < 0 {
		if len(l.Players) == 0 {
			return "", false
		}
		l.assignHost(l.pickHost(0))
		return l.HostID, true
	}
	n := len(l.Players)
	for step := 1; step < n; step++ {
		p := l.Players[(idx+step)%n]
		if p.ConnectionState == Connected {
			l.assignHost(p)
			return p.ID, true
		}
	}
	return l.HostID, false
}

// pickHost returns the first connected player starting at from, falling back
// to the player at from when nobody is connected.
func (l *Lobby) pickHost(from int) *Player {
	n := len(l.Players)
	from %= n
	for step := 0; step < n; step++ {
		p := l.Players[(from+step)%n]
		if p.ConnectionState == Connected {
			return p
		}
	}
	return l.Players[from]
}

func (l *Lobby) assignHost(host *Player) {
	for _, p := range l.Players {
		p.IsHost = p == host
	}
	host.IsReady = true
	l.HostID = host.ID
}

// ConnectedCount returns the number of members with a live transport.
func (l *Lobby) ConnectedCount() int {
	n := 0
	for _, p := range l.Players {
		if p.ConnectionState == Connected {
			n++
		}
	}
	return n
}

// PlayerViews returns the roster in join order.
func (l *Lobby) PlayerViews() []PlayerView {
	views := make([]PlayerView, 0, len(l.Players))
	for _, p := range l.Players {
		views = append(views, p.View())
	}
	return views
}
