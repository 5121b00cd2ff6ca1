package game

import (
	"encoding/json"
	"fmt"
)

// TeamCounter is a per-team tally (index 0 and 1). Persisted and emitted as
// the mapping form {"0": a, "1": b}; older records and clients sometimes
// carry the list form [a, b], so decoding accepts both. Internal code only
// ever sees the array.
type TeamCounter [2]int

func (tc TeamCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]int{"0": tc[0], "1": tc[1]})
}

func (tc *TeamCounter) UnmarshalJSON(data []byte) error {
	var list []int
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) != 2 {
			return fmt.Errorf("team counter list must have 2 entries, got %d", len(list))
		}
		tc[0], tc[1] = list[0], list[1]
		return nil
	}

	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("team counter must be a 2-entry list or a map with keys \"0\" and \"1\"")
	}
	*tc = TeamCounter{}
	for k, v := range m {
		switch k {
		case "0":
			tc[0] = v
		case "1":
			tc[1] = v
		default:
			return fmt.Errorf("team counter has unknown key %q", k)
		}
	}
	return nil
}

// EncodeBoard serializes a board for persistence.
func EncodeBoard(b *Board) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode board %s: %w", b.RoomCode, err)
	}
	return data, nil
}

// DecodeBoard deserializes a persisted board and checks it against the
// game invariants. A record that fails validation is never resumed.
func DecodeBoard(data []byte) (*Board, error) {
	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("decode board %s: %w", b.RoomCode, err)
	}
	return &b, nil
}

// Validate checks the structural invariants that must hold in any resting
// state. It is called on every load from the store; a violation there means
// the persisted record is corrupt.
func (b *Board) Validate() error {
	if b.RoomCode == "" {
		return fmt.Errorf("invalid board: missing room code")
	}

	switch b.Phase {
	case PhaseLobby, PhaseTeamAssignment, PhaseInitialDeal, PhaseTrumpSelection,
		PhaseFinalDeal, PhasePlaying, PhaseHandComplete, PhaseGameComplete, PhaseAbandoned:
	default:
		return fmt.Errorf("invalid board: unknown phase %q", b.Phase)
	}

	if len(b.Players) > SeatsPerRoom {
		return fmt.Errorf("invalid board: %d players seated", len(b.Players))
	}
	for i, p := range b.Players {
		if p == nil {
			return fmt.Errorf("invalid board: seat %d is nil", i)
		}
		if p.ID == "" {
			return fmt.Errorf("invalid board: seat %d has no player id", i)
		}
		if p.Seat != i {
			return fmt.Errorf("invalid board: seat %d holds player with seat %d", i, p.Seat)
		}
		if p.Team != TeamForSeat(i) {
			return fmt.Errorf("invalid board: seat %d on team %d", i, p.Team)
		}
		if p.Status != StatusActive && p.Status != StatusDisconnected {
			return fmt.Errorf("invalid board: seat %d has status %q", i, p.Status)
		}
		if len(p.Hand) > TricksPerHand {
			return fmt.Errorf("invalid board: seat %d holds %d cards", i, len(p.Hand))
		}
	}

	if b.TrickCounts[0] < 0 || b.TrickCounts[1] < 0 || b.RoundWins[0] < 0 || b.RoundWins[1] < 0 {
		return fmt.Errorf("invalid board: negative counter")
	}
	if b.TrickCounts[0]+b.TrickCounts[1] > TricksPerHand {
		return fmt.Errorf("invalid board: %d tricks counted in one hand", b.TrickCounts[0]+b.TrickCounts[1])
	}
	if b.RoundWins[0] > RoundsToWinGame || b.RoundWins[1] > RoundsToWinGame {
		return fmt.Errorf("invalid board: round wins exceed %d", RoundsToWinGame)
	}

	if b.Phase == PhaseLobby {
		if b.Trump != "" {
			return fmt.Errorf("invalid board: trump set in the lobby")
		}
		return nil
	}
	if b.Phase == PhaseAbandoned {
		return nil
	}

	// Every phase past the lobby has a full table and a hakem.
	if len(b.Players) != SeatsPerRoom {
		return fmt.Errorf("invalid board: phase %q with %d players", b.Phase, len(b.Players))
	}
	if b.Hakem < 0 || b.Hakem >= SeatsPerRoom {
		return fmt.Errorf("invalid board: hakem seat %d", b.Hakem)
	}

	completed := b.Round - 1
	if b.Phase == PhaseGameComplete {
		completed = b.Round
	}
	if wins := b.RoundWins[0] + b.RoundWins[1]; wins != completed {
		return fmt.Errorf("invalid board: %d round wins after %d completed rounds", wins, completed)
	}

	switch b.Phase {
	case PhaseTrumpSelection:
		if b.Trump != "" {
			return fmt.Errorf("invalid board: trump already set while awaiting selection")
		}
		if len(b.Deck) != 52-SeatsPerRoom*initialDealSize {
			return fmt.Errorf("invalid board: %d cards undealt awaiting trump", len(b.Deck))
		}
		for i, p := range b.Players {
			if len(p.Hand) != initialDealSize {
				return fmt.Errorf("invalid board: seat %d holds %d cards awaiting trump", i, len(p.Hand))
			}
		}
	case PhasePlaying:
		if !ValidSuit(b.Trump) {
			return fmt.Errorf("invalid board: playing with trump %q", b.Trump)
		}
		if len(b.Deck) != 0 {
			return fmt.Errorf("invalid board: %d cards undealt during play", len(b.Deck))
		}
		if b.CurrentTurn < 0 || b.CurrentTurn >= SeatsPerRoom {
			return fmt.Errorf("invalid board: current turn seat %d", b.CurrentTurn)
		}
		if len(b.Trick.Plays) >= SeatsPerRoom {
			return fmt.Errorf("invalid board: open trick holds %d plays", len(b.Trick.Plays))
		}
		if sum := b.TrickCounts[0] + b.TrickCounts[1]; sum != len(b.CompletedTricks) {
			return fmt.Errorf("invalid board: %d tricks counted, %d closed", sum, len(b.CompletedTricks))
		}
		if b.TrickCounts[0] >= TricksToWinHand || b.TrickCounts[1] >= TricksToWinHand {
			return fmt.Errorf("invalid board: hand still open at %d tricks", TricksToWinHand)
		}
		inOpenTrick := make(map[int]bool, len(b.Trick.Plays))
		for _, play := range b.Trick.Plays {
			if play.Seat < 0 || play.Seat >= SeatsPerRoom {
				return fmt.Errorf("invalid board: play by seat %d", play.Seat)
			}
			if inOpenTrick[play.Seat] {
				return fmt.Errorf("invalid board: seat %d played twice in one trick", play.Seat)
			}
			inOpenTrick[play.Seat] = true
		}
		for i, p := range b.Players {
			held := len(p.Hand) + len(b.CompletedTricks)
			if inOpenTrick[i] {
				held++
			}
			if held != TricksPerHand {
				return fmt.Errorf("invalid board: seat %d accounts for %d of %d cards", i, held, TricksPerHand)
			}
		}
		if len(b.Players[b.CurrentTurn].Hand) == 0 {
			return fmt.Errorf("invalid board: current turn seat %d holds no cards", b.CurrentTurn)
		}
	case PhaseGameComplete:
		if b.RoundWins[0] != RoundsToWinGame && b.RoundWins[1] != RoundsToWinGame {
			return fmt.Errorf("invalid board: game complete without a winner")
		}
	}

	return nil
}
