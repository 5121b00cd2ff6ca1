// Package protocol defines the JSON documents exchanged with clients, one
// document per frame, discriminated by the "type" field.
package protocol

import (
	"errors"

	"hokmd/internal/game"
)

// MessageType discriminates frames in both directions.
type MessageType string

// Client to server.
const (
	TypeJoin        MessageType = "join"
	TypeChooseTrump MessageType = "choose_trump"
	TypePlayCard    MessageType = "play_card"
	TypeHeartbeat   MessageType = "heartbeat"
	TypeLeave       MessageType = "leave"
)

// Server to client.
const (
	TypeJoinSuccess        MessageType = "join_success"
	TypeTeamAssignment     MessageType = "team_assignment"
	TypeInitialDeal        MessageType = "initial_deal"
	TypeTrumpPrompt        MessageType = "trump_prompt"
	TypeTrumpSelected      MessageType = "trump_selected"
	TypeFinalDeal          MessageType = "final_deal"
	TypeTurnStart          MessageType = "turn_start"
	TypeCardPlayed         MessageType = "card_played"
	TypeTrickComplete      MessageType = "trick_complete"
	TypeHandComplete       MessageType = "hand_complete"
	TypeGameComplete       MessageType = "game_complete"
	TypeStateResync        MessageType = "state_resync"
	TypePlayerJoined       MessageType = "player_joined"
	TypePlayerDisconnected MessageType = "player_disconnected"
	TypePlayerReconnected  MessageType = "player_reconnected"
	TypeError              MessageType = "error"
)

// Join asks to seat a player, or to reattach one when PlayerID is set.
type Join struct {
	RoomCode    string `json:"room_code"`
	DisplayName string `json:"display_name"`
	PlayerID    string `json:"player_id,omitempty"`
}

// ChooseTrump is the hakem's trump selection.
type ChooseTrump struct {
	RoomCode string    `json:"room_code"`
	PlayerID string    `json:"player_id"`
	Suit     game.Suit `json:"suit"`
}

// PlayCard submits one card for the current trick.
type PlayCard struct {
	RoomCode string    `json:"room_code"`
	PlayerID string    `json:"player_id"`
	Card     game.Card `json:"card"`
}

// Heartbeat keeps the player's session alive.
type Heartbeat struct {
	PlayerID string `json:"player_id"`
}

// Leave is a graceful exit from the room.
type Leave struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
}

// JoinSuccess confirms a seat and carries the joiner's view of the room.
type JoinSuccess struct {
	Type     MessageType `json:"type"`
	PlayerID string      `json:"player_id"`
	Seat     int         `json:"seat"`
	Team     int         `json:"team"`
	Room     game.View   `json:"room"`
}

func NewJoinSuccess(p *game.Player, view game.View) JoinSuccess {
	return JoinSuccess{Type: TypeJoinSuccess, PlayerID: p.ID, Seat: p.Seat, Team: p.Team, Room: view}
}

// SeatAssignment is one row of the team announcement.
type SeatAssignment struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Team     int    `json:"team"`
}

// TeamAssignment announces seats, teams, and the chosen hakem. Seats are
// keyed by their string form, matching the counter convention.
type TeamAssignment struct {
	Type      MessageType               `json:"type"`
	Seats     map[string]SeatAssignment `json:"seats"`
	Hakem     string                    `json:"hakem"`
	HakemSeat int                       `json:"hakem_seat"`
}

func NewTeamAssignment(b *game.Board) TeamAssignment {
	msg := TeamAssignment{
		Type:      TypeTeamAssignment,
		Seats:     make(map[string]SeatAssignment, len(b.Players)),
		HakemSeat: b.Hakem,
	}
	for _, p := range b.Players {
		msg.Seats[seatKey(p.Seat)] = SeatAssignment{PlayerID: p.ID, Name: p.Name, Team: p.Team}
	}
	if hakem := b.PlayerBySeat(b.Hakem); hakem != nil {
		msg.Hakem = hakem.ID
	}
	return msg
}

func seatKey(seat int) string {
	return string(rune('0' + seat))
}

// InitialDeal carries the recipient's first five cards.
type InitialDeal struct {
	Type  MessageType `json:"type"`
	Cards []game.Card `json:"cards"`
}

func NewInitialDeal(cards []game.Card) InitialDeal {
	return InitialDeal{Type: TypeInitialDeal, Cards: cards}
}

// TrumpPrompt asks the hakem to choose. Sent to the hakem only.
type TrumpPrompt struct {
	Type  MessageType `json:"type"`
	Hakem string      `json:"hakem"`
}

func NewTrumpPrompt(hakemID string) TrumpPrompt {
	return TrumpPrompt{Type: TypeTrumpPrompt, Hakem: hakemID}
}

// TrumpSelected announces the round's trump to the room.
type TrumpSelected struct {
	Type MessageType `json:"type"`
	Suit game.Suit   `json:"suit"`
}

func NewTrumpSelected(suit game.Suit) TrumpSelected {
	return TrumpSelected{Type: TypeTrumpSelected, Suit: suit}
}

// FinalDeal carries the recipient's remaining eight cards.
type FinalDeal struct {
	Type  MessageType `json:"type"`
	Cards []game.Card `json:"cards"`
}

func NewFinalDeal(cards []game.Card) FinalDeal {
	return FinalDeal{Type: TypeFinalDeal, Cards: cards}
}

// TurnStart announces whose play is awaited.
type TurnStart struct {
	Type    MessageType `json:"type"`
	Player  string      `json:"player"`
	Seat    int         `json:"seat"`
	LedSuit game.Suit   `json:"led_suit,omitempty"`
}

func NewTurnStart(playerID string, seat int, led game.Suit) TurnStart {
	return TurnStart{Type: TypeTurnStart, Player: playerID, Seat: seat, LedSuit: led}
}

// CardPlayed reports an accepted play to the room.
type CardPlayed struct {
	Type    MessageType `json:"type"`
	Player  string      `json:"player"`
	Seat    int         `json:"seat"`
	Card    game.Card   `json:"card"`
	LedSuit game.Suit   `json:"led_suit"`
}

func NewCardPlayed(playerID string, seat int, card game.Card, led game.Suit) CardPlayed {
	return CardPlayed{Type: TypeCardPlayed, Player: playerID, Seat: seat, Card: card, LedSuit: led}
}

// TrickComplete reports a resolved trick and the running counts.
type TrickComplete struct {
	Type       MessageType      `json:"type"`
	Winner     string           `json:"winner"`
	WinnerSeat int              `json:"winner_seat"`
	Tricks     game.TeamCounter `json:"tricks"`
}

func NewTrickComplete(winnerID string, seat int, tricks game.TeamCounter) TrickComplete {
	return TrickComplete{Type: TypeTrickComplete, Winner: winnerID, WinnerSeat: seat, Tricks: tricks}
}

// HandComplete reports a finished round.
type HandComplete struct {
	Type       MessageType      `json:"type"`
	WinnerTeam int              `json:"winner_team"`
	Tricks     game.TeamCounter `json:"tricks"`
	RoundWins  game.TeamCounter `json:"round_wins"`
}

func NewHandComplete(winnerTeam int, tricks, roundWins game.TeamCounter) HandComplete {
	return HandComplete{Type: TypeHandComplete, WinnerTeam: winnerTeam, Tricks: tricks, RoundWins: roundWins}
}

// GameComplete reports the final result.
type GameComplete struct {
	Type       MessageType      `json:"type"`
	WinnerTeam int              `json:"winner_team"`
	RoundWins  game.TeamCounter `json:"round_wins"`
}

func NewGameComplete(winnerTeam int, roundWins game.TeamCounter) GameComplete {
	return GameComplete{Type: TypeGameComplete, WinnerTeam: winnerTeam, RoundWins: roundWins}
}

// StateResync carries a reconnecting player's complete personal view.
type StateResync struct {
	Type  MessageType `json:"type"`
	State game.View   `json:"state"`
}

func NewStateResync(view game.View) StateResync {
	return StateResync{Type: TypeStateResync, State: view}
}

// PlayerJoined announces a lobby arrival. Public fields only.
type PlayerJoined struct {
	Type   MessageType `json:"type"`
	Player string      `json:"player"`
	Name   string      `json:"name"`
	Seat   int         `json:"seat"`
}

func NewPlayerJoined(p *game.Player) PlayerJoined {
	return PlayerJoined{Type: TypePlayerJoined, Player: p.ID, Name: p.Name, Seat: p.Seat}
}

// PlayerDisconnected announces a dropped connection to the room.
type PlayerDisconnected struct {
	Type   MessageType `json:"type"`
	Player string      `json:"player"`
	Seat   int         `json:"seat"`
}

func NewPlayerDisconnected(playerID string, seat int) PlayerDisconnected {
	return PlayerDisconnected{Type: TypePlayerDisconnected, Player: playerID, Seat: seat}
}

// PlayerReconnected announces a recovered connection to the room.
type PlayerReconnected struct {
	Type   MessageType `json:"type"`
	Player string      `json:"player"`
	Seat   int         `json:"seat"`
}

func NewPlayerReconnected(playerID string, seat int) PlayerReconnected {
	return PlayerReconnected{Type: TypePlayerReconnected, Player: playerID, Seat: seat}
}

// ErrorMessage reports a rejected action or session problem.
type ErrorMessage struct {
	Type         MessageType `json:"type"`
	Code         string      `json:"code"`
	Reason       string      `json:"reason"`
	CurrentPhase game.Phase  `json:"current_phase,omitempty"`
	LedSuit      game.Suit   `json:"led_suit,omitempty"`
}

// NewErrorMessage translates an error into its wire form. Game errors carry
// their code and context; anything else is flattened to server_error.
func NewErrorMessage(err error) ErrorMessage {
	var gameErr *game.Error
	if errors.As(err, &gameErr) {
		return ErrorMessage{
			Type:         TypeError,
			Code:         string(gameErr.Code),
			Reason:       gameErr.Reason,
			CurrentPhase: gameErr.Phase,
			LedSuit:      gameErr.LedSuit,
		}
	}
	return ErrorMessage{
		Type:   TypeError,
		Code:   string(game.CodeServerError),
		Reason: "internal server error",
	}
}
