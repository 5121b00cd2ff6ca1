package game

import (
	"time"
)

// Phase is the lifecycle state of a room's board.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseTeamAssignment Phase = "team-assignment"
	PhaseInitialDeal    Phase = "initial-deal"
	PhaseTrumpSelection Phase = "trump-selection"
	PhaseFinalDeal      Phase = "final-deal"
	PhasePlaying        Phase = "playing"
	PhaseHandComplete   Phase = "hand-complete"
	PhaseGameComplete   Phase = "game-complete"
	PhaseAbandoned      Phase = "abandoned"
)

const (
	// SeatsPerRoom is the fixed player count of a Hokm table.
	SeatsPerRoom = 4
	// TricksToWinHand ends a hand the moment a team reaches it.
	TricksToWinHand = 7
	// RoundsToWinGame ends the game the moment a team reaches it.
	RoundsToWinGame = 7
	// TricksPerHand is the safety cap on tricks in one hand.
	TricksPerHand = 13
	initialDealSize = 5
	finalDealSize   = 8
)

// Terminal reports whether no further actions are accepted in phase p.
func (p Phase) Terminal() bool {
	return p == PhaseGameComplete || p == PhaseAbandoned
}

// Board is the authoritative state of one room. All mutating methods are
// synchronous and must be called from a single writer; the room coordinator
// provides that discipline. Methods that return an error leave the board
// untouched.
type Board struct {
	RoomCode        string      `json:"room_code"`
	Phase           Phase       `json:"phase"`
	Players         []*Player   `json:"players"` // indexed by seat
	Hakem           int         `json:"hakem"`   // seat, -1 until teams assigned
	Trump           Suit        `json:"trump,omitempty"`
	CurrentTurn     int         `json:"current_turn"` // seat, -1 outside play
	Trick           Trick       `json:"trick"`        // the open trick
	CompletedTricks []Trick     `json:"completed_tricks,omitempty"`
	TrickCounts     TeamCounter `json:"trick_counts"`
	RoundWins       TeamCounter `json:"round_wins"`
	Round           int         `json:"round"` // 1-based count of rounds started
	Deck            []Card      `json:"deck,omitempty"` // undealt remainder mid-round
	CreatedAt       time.Time   `json:"created_at"`
}

// NewBoard creates an empty board in the lobby phase.
func NewBoard(roomCode string) *Board {
	return &Board{
		RoomCode:    roomCode,
		Phase:       PhaseLobby,
		Hakem:       -1,
		CurrentTurn: -1,
		Trick:       NewTrick(),
		CreatedAt:   time.Now(),
	}
}

// PlayerByID returns the seated player with the given ID, or nil.
func (b *Board) PlayerByID(id string) *Player {
	for _, p := range b.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerBySeat returns the player at seat, or nil for an unfilled seat.
func (b *Board) PlayerBySeat(seat int) *Player {
	if seat < 0 || seat >= len(b.Players) {
		return nil
	}
	return b.Players[seat]
}

// HasPlayer reports whether id is seated on this board.
func (b *Board) HasPlayer(id string) bool {
	return b.PlayerByID(id) != nil
}

// LedSuit returns the open trick's led suit, or empty when leading.
func (b *Board) LedSuit() Suit {
	led, _ := b.Trick.LedSuit()
	return led
}

// JoinResult reports what a join did to the board.
type JoinResult struct {
	Player   *Player
	Rejoined bool
	Started  bool // fourth seat filled: teams assigned, first round dealt
}

// Join seats a new player or reattaches a known one. New joins are accepted
// only in the lobby; a known ID is accepted in any non-terminal phase and
// flips the player back to active.
func (b *Board) Join(id, name string) (*JoinResult, error) {
	if p := b.PlayerByID(id); p != nil {
		if b.Phase.Terminal() {
			return nil, IllegalPhaseError(b.Phase)
		}
		p.Status = StatusActive
		return &JoinResult{Player: p, Rejoined: true}, nil
	}

	if b.Phase != PhaseLobby {
		if len(b.Players) >= SeatsPerRoom {
			return nil, ErrRoomFull
		}
		return nil, IllegalPhaseError(b.Phase)
	}
	if len(b.Players) >= SeatsPerRoom {
		return nil, ErrRoomFull
	}

	player := NewPlayer(id, name, len(b.Players))
	b.Players = append(b.Players, player)

	res := &JoinResult{Player: player}
	if len(b.Players) == SeatsPerRoom {
		b.assignTeams()
		b.startRound()
		res.Started = true
	}
	return res, nil
}

// assignTeams fixes seats and teams (already implied by join order) and
// draws the first hakem uniformly at random.
func (b *Board) assignTeams() {
	b.Phase = PhaseTeamAssignment
	b.Hakem = cryptoIntn(SeatsPerRoom)
}

// startRound deals a fresh shuffled deck: five cards per player in seat
// order starting at the hakem, remainder parked on the board for the final
// deal. Leaves the board awaiting the hakem's trump choice.
func (b *Board) startRound() {
	b.Round++
	b.Trump = ""
	b.TrickCounts = TeamCounter{}
	b.CompletedTricks = nil
	b.Trick = NewTrick()
	b.CurrentTurn = -1
	b.Phase = PhaseInitialDeal

	deck := NewShuffledDeck()
	hands, rest, err := Deal(deck, initialDealSize, initialDealSize, initialDealSize, initialDealSize)
	if err != nil {
		// 20 from 52 cannot fail.
		panic(err)
	}
	for i, hand := range hands {
		b.Players[(b.Hakem+i)%SeatsPerRoom].Hand = hand
	}
	b.Deck = rest
	b.Phase = PhaseTrumpSelection
}

// TrumpResult reports a completed trump selection.
type TrumpResult struct {
	Trump Suit
	Dealt [][]Card // the eight cards each seat just received, indexed by seat
}

// ChooseTrump fixes the round's trump suit. Only the hakem may choose, and
// only while the board is awaiting the choice. On success the remaining
// eight cards are dealt to every player and play opens with the hakem.
func (b *Board) ChooseTrump(playerID string, suit Suit) (*TrumpResult, error) {
	player := b.PlayerByID(playerID)
	if player == nil {
		return nil, ErrNotInRoom
	}
	if b.Phase != PhaseTrumpSelection {
		return nil, IllegalPhaseError(b.Phase)
	}
	if player.Seat != b.Hakem {
		return nil, ErrOnlyHakem
	}
	if !ValidSuit(suit) {
		return nil, ErrInvalidTrump
	}

	b.Trump = suit
	return &TrumpResult{Trump: suit, Dealt: b.finalDeal()}, nil
}

// finalDeal hands out the remaining 32 cards and opens play. Returns the
// newly dealt cards by seat.
func (b *Board) finalDeal() [][]Card {
	b.Phase = PhaseFinalDeal
	hands, rest, err := Deal(b.Deck, finalDealSize, finalDealSize, finalDealSize, finalDealSize)
	if err != nil {
		panic(err)
	}
	dealt := make([][]Card, SeatsPerRoom)
	for i, hand := range hands {
		seat := (b.Hakem + i) % SeatsPerRoom
		b.Players[seat].Hand = append(b.Players[seat].Hand, hand...)
		dealt[seat] = hand
	}
	b.Deck = rest
	b.CurrentTurn = b.Hakem
	b.Phase = PhasePlaying
	return dealt
}

// PlayResult reports everything a single accepted play changed, so the
// caller can emit the corresponding events.
type PlayResult struct {
	Play        Play
	LedSuit     Suit
	NextTurn    int // seat to act next; -1 when the hand or game ended
	TrickClosed bool
	TrickWinner int // winning seat, set when TrickClosed

	HandComplete bool
	HandWinner   int         // winning team, set when HandComplete
	HandTricks   TeamCounter // trick counts of the finished hand

	GameComplete bool
	NewRound     bool // next round dealt, awaiting trump
}

// PlayCard applies the current-turn player's card. Checks run in order:
// phase, turn, legality. A failed check changes nothing.
func (b *Board) PlayCard(playerID string, card Card) (*PlayResult, error) {
	player := b.PlayerByID(playerID)
	if player == nil {
		return nil, ErrNotInRoom
	}
	if b.Phase != PhasePlaying {
		return nil, IllegalPhaseError(b.Phase)
	}
	if player.Seat != b.CurrentTurn {
		return nil, ErrNotYourTurn
	}
	led := b.LedSuit()
	if err := IsLegalPlay(player.Hand, card, led); err != nil {
		return nil, err
	}

	player.Hand, _ = RemoveCard(player.Hand, card)
	b.Trick.Plays = append(b.Trick.Plays, Play{Seat: player.Seat, Card: card})
	if led == "" {
		led = card.Suit
	}

	res := &PlayResult{
		Play:    Play{Seat: player.Seat, Card: card},
		LedSuit: led,
	}

	if !b.Trick.Complete() {
		b.CurrentTurn = (player.Seat + 1) % SeatsPerRoom
		res.NextTurn = b.CurrentTurn
		return res, nil
	}

	b.closeTrick(res)
	return res, nil
}

// closeTrick resolves the completed trick and, if it decided the hand,
// cascades into hand and game completion.
func (b *Board) closeTrick(res *PlayResult) {
	winner := TrickWinner(b.Trick.Plays, b.Trump)
	b.Trick.Winner = winner
	b.CompletedTricks = append(b.CompletedTricks, b.Trick)
	b.Trick = NewTrick()

	team := TeamForSeat(winner)
	b.TrickCounts[team]++

	res.TrickClosed = true
	res.TrickWinner = winner

	if b.TrickCounts[team] >= TricksToWinHand || len(b.CompletedTricks) >= TricksPerHand {
		b.completeHand(res)
		return
	}

	b.CurrentTurn = winner
	res.NextTurn = winner
}

// completeHand credits the round to the team with more tricks and either
// ends the game or rotates the hakem and deals the next round.
func (b *Board) completeHand(res *PlayResult) {
	b.Phase = PhaseHandComplete
	b.CurrentTurn = -1

	winner := 0
	if b.TrickCounts[1] > b.TrickCounts[0] {
		winner = 1
	}
	b.RoundWins[winner]++

	res.HandComplete = true
	res.HandWinner = winner
	res.HandTricks = b.TrickCounts
	res.NextTurn = -1

	if b.RoundWins[winner] >= RoundsToWinGame {
		b.Phase = PhaseGameComplete
		res.GameComplete = true
		return
	}

	// The hakem keeps the seat while their team wins; otherwise it rotates
	// to the next seat clockwise belonging to the winning team.
	if TeamForSeat(b.Hakem) != winner {
		for i := 1; i <= SeatsPerRoom; i++ {
			seat := (b.Hakem + i) % SeatsPerRoom
			if TeamForSeat(seat) == winner {
				b.Hakem = seat
				break
			}
		}
	}

	b.startRound()
	res.NewRound = true
}

// Autoplay plays the lowest-index legal card for the current-turn player.
// Invoked when the turn deadline lapses.
func (b *Board) Autoplay() (*PlayResult, error) {
	if b.Phase != PhasePlaying {
		return nil, IllegalPhaseError(b.Phase)
	}
	player := b.PlayerBySeat(b.CurrentTurn)
	if player == nil || len(player.Hand) == 0 {
		return nil, IllegalPhaseError(b.Phase)
	}
	card := player.Hand[FirstLegalCard(player.Hand, b.LedSuit())]
	return b.PlayCard(player.ID, card)
}

// LeaveResult reports the effect of a graceful exit.
type LeaveResult struct {
	Player    *Player
	Abandoned bool // the departure ended the game for everyone
}

// Leave removes a player gracefully. In the lobby the seat is freed and the
// remaining players reseat; mid-game the room cannot continue and is
// abandoned. After the game has ended leaving is a no-op acknowledgement.
func (b *Board) Leave(playerID string) (*LeaveResult, error) {
	player := b.PlayerByID(playerID)
	if player == nil {
		return nil, ErrNotInRoom
	}

	res := &LeaveResult{Player: player}
	switch {
	case b.Phase == PhaseLobby:
		players := make([]*Player, 0, len(b.Players)-1)
		for _, p := range b.Players {
			if p.ID != playerID {
				players = append(players, p)
			}
		}
		for i, p := range players {
			p.Seat = i
			p.Team = TeamForSeat(i)
		}
		b.Players = players
	case b.Phase.Terminal():
		// Nothing left to tear down.
	default:
		b.Abandon()
		res.Abandoned = true
	}
	return res, nil
}

// Abandon marks the room permanently dead. Safe to call in any phase.
func (b *Board) Abandon() {
	if !b.Phase.Terminal() {
		b.Phase = PhaseAbandoned
		b.CurrentTurn = -1
	}
}

// MarkDisconnected records that the player has no live connection.
func (b *Board) MarkDisconnected(playerID string) {
	if p := b.PlayerByID(playerID); p != nil {
		p.Status = StatusDisconnected
	}
}

// MarkConnected records that the player is attached again.
func (b *Board) MarkConnected(playerID string) {
	if p := b.PlayerByID(playerID); p != nil {
		p.Status = StatusActive
	}
}

// AllDisconnected reports whether no seated player has a live connection.
func (b *Board) AllDisconnected() bool {
	for _, p := range b.Players {
		if p.Connected() {
			return false
		}
	}
	return len(b.Players) > 0
}

// Clone returns a deep copy used as the pre-image for rollback.
func (b *Board) Clone() *Board {
	c := *b
	c.Players = make([]*Player, len(b.Players))
	for i, p := range b.Players {
		cp := *p
		cp.Hand = append([]Card(nil), p.Hand...)
		c.Players[i] = &cp
	}
	c.Trick.Plays = append([]Play(nil), b.Trick.Plays...)
	c.CompletedTricks = make([]Trick, len(b.CompletedTricks))
	for i, t := range b.CompletedTricks {
		t.Plays = append([]Play(nil), t.Plays...)
		c.CompletedTricks[i] = t
	}
	c.Deck = append([]Card(nil), b.Deck...)
	return &c
}

// SeatInfo is the public slice of a player everyone in the room may see.
type SeatInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Seat      int    `json:"seat"`
	Team      int    `json:"team"`
	Status    string `json:"status"`
	CardsLeft int    `json:"cards_left"`
}

// View is one player's complete picture of the room: every public field
// plus that player's own hand. Never contains another player's cards.
type View struct {
	RoomCode    string      `json:"room_code"`
	Phase       Phase       `json:"phase"`
	Players     []SeatInfo  `json:"players"`
	Hakem       int         `json:"hakem"`
	Trump       Suit        `json:"trump,omitempty"`
	CurrentTurn int         `json:"current_turn"`
	Trick       []Play      `json:"trick"`
	TrickCounts TeamCounter `json:"trick_counts"`
	RoundWins   TeamCounter `json:"round_wins"`
	Round       int         `json:"round"`
	Hand        []Card      `json:"hand"`
}

// ViewFor builds the personalized room view for playerID.
func (b *Board) ViewFor(playerID string) View {
	v := View{
		RoomCode:    b.RoomCode,
		Phase:       b.Phase,
		Players:     make([]SeatInfo, 0, len(b.Players)),
		Hakem:       b.Hakem,
		Trump:       b.Trump,
		CurrentTurn: b.CurrentTurn,
		Trick:       append([]Play(nil), b.Trick.Plays...),
		TrickCounts: b.TrickCounts,
		RoundWins:   b.RoundWins,
		Round:       b.Round,
	}
	for _, p := range b.Players {
		v.Players = append(v.Players, SeatInfo{
			ID:        p.ID,
			Name:      p.Name,
			Seat:      p.Seat,
			Team:      p.Team,
			Status:    p.Status,
			CardsLeft: len(p.Hand),
		})
		if p.ID == playerID {
			v.Hand = append([]Card(nil), p.Hand...)
		}
	}
	return v
}
