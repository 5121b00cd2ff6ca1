package game

import "fmt"

// Suit is one of the four French suits, in the lowercase form used on the wire.
type Suit string

const (
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
	SuitSpades   Suit = "spades"
)

// Suits lists all suits in canonical deck order.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

// ValidSuit reports whether s names one of the four suits.
func ValidSuit(s Suit) bool {
	switch s {
	case SuitHearts, SuitDiamonds, SuitClubs, SuitSpades:
		return true
	}
	return false
}

// Rank is a card rank in its wire form: "2".."10", "J", "Q", "K", "A".
type Rank string

const (
	RankTwo   Rank = "2"
	RankThree Rank = "3"
	RankFour  Rank = "4"
	RankFive  Rank = "5"
	RankSix   Rank = "6"
	RankSeven Rank = "7"
	RankEight Rank = "8"
	RankNine  Rank = "9"
	RankTen   Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
	RankAce   Rank = "A"
)

// Ranks lists all ranks from lowest to highest.
var Ranks = []Rank{
	RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven,
	RankEight, RankNine, RankTen, RankJack, RankQueen, RankKing, RankAce,
}

// rankOrder defines the total order used for trick resolution.
var rankOrder = map[Rank]int{
	RankTwo:   2,
	RankThree: 3,
	RankFour:  4,
	RankFive:  5,
	RankSix:   6,
	RankSeven: 7,
	RankEight: 8,
	RankNine:  9,
	RankTen:   10,
	RankJack:  11,
	RankQueen: 12,
	RankKing:  13,
	RankAce:   14,
}

// Value returns the rank's position in the trick-taking order (2 lowest, 14 highest).
// Unknown ranks return 0 and lose to everything.
func (r Rank) Value() int {
	return rankOrder[r]
}

// ValidRank reports whether r is one of the thirteen ranks.
func ValidRank(r Rank) bool {
	_, ok := rankOrder[r]
	return ok
}

// Card is a single playing card. The zero value is not a valid card.
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// Valid reports whether the card names a real rank and suit.
func (c Card) Valid() bool {
	return ValidRank(c.Rank) && ValidSuit(c.Suit)
}

func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}

// ContainsCard reports whether hand holds card.
func ContainsCard(hand []Card, card Card) bool {
	for _, c := range hand {
		if c == card {
			return true
		}
	}
	return false
}

// HasSuit reports whether hand holds at least one card of suit.
func HasSuit(hand []Card, suit Suit) bool {
	for _, c := range hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

// RemoveCard returns hand without the first occurrence of card.
// The second return is false if card was not present.
func RemoveCard(hand []Card, card Card) ([]Card, bool) {
	for i, c := range hand {
		if c == card {
			out := make([]Card, 0, len(hand)-1)
			out = append(out, hand[:i]...)
			out = append(out, hand[i+1:]...)
			return out, true
		}
	}
	return hand, false
}
