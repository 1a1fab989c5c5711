package memory

import (
	"context"
	"sync"
)

// LobbyDirectory is an in-process implementation of app.LobbyDirectory.
type LobbyDirectory struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

func NewLobbyDirectory() *LobbyDirectory {
	return &LobbyDirectory{codes: make(map[string]struct{})}
}

func (d *LobbyDirectory) Reserve(_ context.Context, code string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.codes[code]; taken {
		return false, nil
	}
	d.codes[code] = struct{}{}
	return true, nil
}

func (d *LobbyDirectory) Release(_ context.Context, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.codes, code)
	return nil
}

// Reserved reports whether code is currently held.
func (d *LobbyDirectory) Reserved(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.codes[code]
	return ok
}
