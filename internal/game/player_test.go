package game

import (
	"testing"
	"time"
)

func TestNewPlayer(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		playerName string
		seat       int
		wantTeam   int
	}{
		{
			name:       "creates player with all fields",
			id:         "player-123",
			playerName: "Alice",
			seat:       0,
			wantTeam:   0,
		},
		{
			name:       "odd seat lands on team one",
			id:         "player-456",
			playerName: "Bahram",
			seat:       3,
			wantTeam:   1,
		},
		{
			name:       "creates player with empty name",
			id:         "player-789",
			playerName: "",
			seat:       2,
			wantTeam:   0,
		},
		{
			name:       "creates player with unicode name",
			id:         "player-unicode",
			playerName: "بازیکن",
			seat:       1,
			wantTeam:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			beforeCreation := time.Now()
			player := NewPlayer(tt.id, tt.playerName, tt.seat)
			afterCreation := time.Now()

			// Verify basic fields
			if player.ID != tt.id {
				t.Errorf("ID = %v, want %v", player.ID, tt.id)
			}
			if player.Name != tt.playerName {
				t.Errorf("Name = %v, want %v", player.Name, tt.playerName)
			}
			if player.Seat != tt.seat {
				t.Errorf("Seat = %v, want %v", player.Seat, tt.seat)
			}
			if player.Team != tt.wantTeam {
				t.Errorf("Team = %v, want %v", player.Team, tt.wantTeam)
			}

			// Verify default values
			if player.Status != StatusActive {
				t.Errorf("Status = %v, want %v", player.Status, StatusActive)
			}
			if len(player.Hand) != 0 {
				t.Errorf("Hand = %v, want empty", player.Hand)
			}

			// Verify JoinedAt is set to current time
			if player.JoinedAt.Before(beforeCreation) || player.JoinedAt.After(afterCreation) {
				t.Errorf("JoinedAt = %v, want between %v and %v", player.JoinedAt, beforeCreation, afterCreation)
			}
		})
	}
}

func TestTeamForSeat(t *testing.T) {
	wants := []int{0, 1, 0, 1}
	for seat, want := range wants {
		if got := TeamForSeat(seat); got != want {
			t.Errorf("TeamForSeat(%d) = %d, want %d", seat, got, want)
		}
	}
}

func TestPlayer_Connected(t *testing.T) {
	player := NewPlayer("player-1", "Bob", 0)

	if !player.Connected() {
		t.Error("new player should start connected")
	}

	player.Status = StatusDisconnected
	if player.Connected() {
		t.Error("disconnected player reported as connected")
	}

	player.Status = StatusActive
	if !player.Connected() {
		t.Error("reactivated player reported as disconnected")
	}
}

func TestPlayer_ZeroValues(t *testing.T) {
	// Test with empty/zero values
	player := NewPlayer("", "", 0)

	if player.ID != "" {
		t.Errorf("ID with empty string = %v, want empty", player.ID)
	}
	if player.Name != "" {
		t.Errorf("Name with empty string = %v, want empty", player.Name)
	}

	// Even with zero values, JoinedAt should be set
	if player.JoinedAt.IsZero() {
		t.Errorf("JoinedAt should not be zero even with empty inputs")
	}
}

// Benchmark for performance testing
func BenchmarkNewPlayer(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewPlayer("player-bench", "BenchPlayer", 2)
	}
}
