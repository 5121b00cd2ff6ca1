package hub

import (
	"sync"
)

// identity is the (player, room) pair a connection is attached to.
type identity struct {
	playerID string
	roomCode string
}

// Registry is the bidirectional mapping between live connections and seated
// players, and the fan-out primitive. Guarded by one map lock; no call holds
// the lock across a socket write.
type Registry struct {
	mu       sync.RWMutex
	byConn   map[*Client]identity
	byPlayer map[string]*Client
	byRoom   map[string]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:   make(map[*Client]identity),
		byPlayer: make(map[string]*Client),
		byRoom:   make(map[string]map[string]*Client),
	}
}

// Attach registers the triple. If another connection is already registered
// for the player it is unregistered and returned so the caller can close it
// as superseded.
func (r *Registry) Attach(c *Client, playerID, roomCode string) (replaced *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byPlayer[playerID]; ok && old != c {
		replaced = old
		delete(r.byConn, old)
	}

	r.byConn[c] = identity{playerID: playerID, roomCode: roomCode}
	r.byPlayer[playerID] = c
	room := r.byRoom[roomCode]
	if room == nil {
		room = make(map[string]*Client)
		r.byRoom[roomCode] = room
	}
	room[playerID] = c
	return replaced
}

// Detach removes the connection's registration. Reports false when the
// connection was never attached or was already superseded.
func (r *Registry) Detach(c *Client) (identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ident, ok := r.byConn[c]
	if !ok {
		return identity{}, false
	}
	delete(r.byConn, c)
	// Only drop the player mapping if it still points at this connection; a
	// newer attach may have replaced it.
	if cur, exists := r.byPlayer[ident.playerID]; exists && cur == c {
		delete(r.byPlayer, ident.playerID)
		if room := r.byRoom[ident.roomCode]; room != nil {
			delete(room, ident.playerID)
			if len(room) == 0 {
				delete(r.byRoom, ident.roomCode)
			}
		}
	}
	return ident, true
}

// Resolve returns the identity attached to the connection.
func (r *Registry) Resolve(c *Client) (identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.byConn[c]
	return ident, ok
}

// ClientFor returns the live connection for a player.
func (r *Registry) ClientFor(playerID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byPlayer[playerID]
	return c, ok
}

// RoomClients snapshots the connections attached to a room.
func (r *Registry) RoomClients(roomCode string) map[string]*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.byRoom[roomCode]
	out := make(map[string]*Client, len(room))
	for pid, c := range room {
		out[pid] = c
	}
	return out
}

// Len reports the number of attached connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// AllClients snapshots every attached connection.
func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for c := range r.byConn {
		out = append(out, c)
	}
	return out
}
