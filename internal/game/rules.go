package game

// Play is one card laid into a trick by the player seated at Seat.
type Play struct {
	Seat int  `json:"seat"`
	Card Card `json:"card"`
}

// Trick is one cycle of up to four plays. Winner is -1 while the trick is
// open and the winning seat once it closes.
type Trick struct {
	Plays  []Play `json:"plays"`
	Winner int    `json:"winner"`
}

// NewTrick returns an empty open trick.
func NewTrick() Trick {
	return Trick{Winner: -1}
}

// LedSuit returns the suit of the first play, or false if nothing has been
// played yet.
func (t *Trick) LedSuit() (Suit, bool) {
	if len(t.Plays) == 0 {
		return "", false
	}
	return t.Plays[0].Card.Suit, true
}

// Complete reports whether all four plays are in.
func (t *Trick) Complete() bool {
	return len(t.Plays) == 4
}

// beats reports whether challenger takes the trick from the current best
// card. best is always of the led suit or trump, so an off-suit non-trump
// challenger never wins.
func beats(challenger, best Card, trump Suit) bool {
	if challenger.Suit == best.Suit {
		return challenger.Rank.Value() > best.Rank.Value()
	}
	return challenger.Suit == trump
}

// TrickWinner resolves a completed set of plays: the highest trump wins if
// any trump was played, otherwise the highest card of the led suit. Ranks
// are unique within a suit, so there are no ties.
func TrickWinner(plays []Play, trump Suit) int {
	best := plays[0]
	for _, p := range plays[1:] {
		if beats(p.Card, best.Card, trump) {
			best = p
		}
	}
	return best.Seat
}

// IsLegalPlay checks a candidate play against the hand and the led suit.
// led is empty when the player is leading. Returns nil when legal; the
// *Error carries the rejection code otherwise. Trump grants no exemption
// from following suit.
func IsLegalPlay(hand []Card, card Card, led Suit) *Error {
	if !ContainsCard(hand, card) {
		return ErrNotInHand
	}
	if led != "" && card.Suit != led && HasSuit(hand, led) {
		return FollowSuitError(led)
	}
	return nil
}

// FirstLegalCard returns the index of the lowest-index legal card in hand
// for the given led suit. Used for deadline auto-play; assumes a non-empty
// hand.
func FirstLegalCard(hand []Card, led Suit) int {
	for i, c := range hand {
		if IsLegalPlay(hand, c, led) == nil {
			return i
		}
	}
	// Unreachable: a non-empty hand always contains a legal card, since
	// follow-suit only binds when the suit is actually held.
	return 0
}
