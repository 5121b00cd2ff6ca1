package protocol

import (
	"encoding/json"
	"fmt"

	"hokmd/internal/game"
)

type envelope struct {
	Type MessageType `json:"type"`
}

// Decode parses one inbound frame and returns a pointer to its typed form:
// *Join, *ChooseTrump, *PlayCard, *Heartbeat, or *Leave. Frames that fail to
// parse, name an unknown type, or miss required fields come back as a
// bad_message error and must not reach the game.
func Decode(data []byte) (any, *game.Error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, game.BadMessageError("frame is not valid JSON")
	}

	switch env.Type {
	case TypeJoin:
		var msg Join
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, game.BadMessageError("malformed join frame")
		}
		if msg.RoomCode == "" || msg.DisplayName == "" {
			return nil, game.BadMessageError("join requires room_code and display_name")
		}
		return &msg, nil

	case TypeChooseTrump:
		var msg ChooseTrump
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, game.BadMessageError("malformed choose_trump frame")
		}
		if msg.RoomCode == "" || msg.PlayerID == "" {
			return nil, game.BadMessageError("choose_trump requires room_code and player_id")
		}
		if msg.Suit == "" {
			return nil, game.BadMessageError("choose_trump requires a suit")
		}
		return &msg, nil

	case TypePlayCard:
		var msg PlayCard
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, game.BadMessageError("malformed play_card frame")
		}
		if msg.RoomCode == "" || msg.PlayerID == "" {
			return nil, game.BadMessageError("play_card requires room_code and player_id")
		}
		if !msg.Card.Valid() {
			return nil, game.BadMessageError(fmt.Sprintf("%q of %q is not a card", msg.Card.Rank, msg.Card.Suit))
		}
		return &msg, nil

	case TypeHeartbeat:
		var msg Heartbeat
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, game.BadMessageError("malformed heartbeat frame")
		}
		if msg.PlayerID == "" {
			return nil, game.BadMessageError("heartbeat requires player_id")
		}
		return &msg, nil

	case TypeLeave:
		var msg Leave
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, game.BadMessageError("malformed leave frame")
		}
		if msg.RoomCode == "" || msg.PlayerID == "" {
			return nil, game.BadMessageError("leave requires room_code and player_id")
		}
		return &msg, nil

	case "":
		return nil, game.BadMessageError("frame has no type")

	default:
		return nil, game.BadMessageError(fmt.Sprintf("unknown message type %q", env.Type))
	}
}

// Encode marshals an outbound frame.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
