package game

import (
	"time"
)

// Connection status values for a seated player.
const (
	StatusActive       = "active"
	StatusDisconnected = "disconnected"
)

// Player is a seated participant in a room. The ID is minted by the server
// on first join and reused across reconnects.
type Player struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Seat          int       `json:"seat"`
	Team          int       `json:"team"`
	Hand          []Card    `json:"hand"`
	Status        string    `json:"status"`
	JoinedAt      time.Time `json:"joined_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// NewPlayer seats a player. Team membership follows from the seat: even
// seats form team 0, odd seats team 1.
func NewPlayer(id, name string, seat int) *Player {
	return &Player{
		ID:       id,
		Name:     name,
		Seat:     seat,
		Team:     TeamForSeat(seat),
		Status:   StatusActive,
		JoinedAt: time.Now(),
	}
}

// TeamForSeat maps a seat to its team: seats {0,2} play seats {1,3}.
func TeamForSeat(seat int) int {
	return seat % 2
}

// Connected reports whether the player currently has a live connection.
func (p *Player) Connected() bool {
	return p.Status == StatusActive
}
