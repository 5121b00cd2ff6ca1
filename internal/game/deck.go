package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewDeck returns the 52 distinct cards in canonical order (suits in deck
// order, ranks low to high within each suit).
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, s := range Suits {
		for _, r := range Ranks {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// NewShuffledDeck returns a fresh 52-card deck under a uniform random
// permutation.
func NewShuffledDeck() []Card {
	deck := NewDeck()
	Shuffle(deck)
	return deck
}

// Shuffle permutes cards in place with a Fisher-Yates walk driven by
// crypto/rand, so every permutation is equally likely.
func Shuffle(cards []Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := cryptoIntn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// cryptoIntn returns a uniform random int in [0, n). rand.Int performs the
// rejection sampling needed to avoid modulo bias.
func cryptoIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// The platform CSPRNG failing is not something the game can
		// recover from.
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return int(v.Int64())
}

// Deal splits deck into hands of the requested sizes, consuming the deck in
// order, and returns the hands plus the undealt remainder.
func Deal(deck []Card, counts ...int) ([][]Card, []Card, error) {
	total := 0
	for _, n := range counts {
		if n < 0 {
			return nil, nil, &DealError{Requested: n, Available: len(deck)}
		}
		total += n
	}
	if total > len(deck) {
		return nil, nil, &DealError{Requested: total, Available: len(deck)}
	}

	hands := make([][]Card, len(counts))
	offset := 0
	for i, n := range counts {
		hands[i] = make([]Card, n)
		copy(hands[i], deck[offset:offset+n])
		offset += n
	}

	rest := make([]Card, len(deck)-offset)
	copy(rest, deck[offset:])
	return hands, rest, nil
}
