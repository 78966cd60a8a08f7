package card

import (
	"fmt"
	"math/rand"
	"time"
)

// Deck is the stock pile plus discard pile for one round of play. It owns
// its own seeded random source so that two decks built with the same seed
// and options always deal identically, which is what makes a round
// reproducible from a recorded seed.
type Deck struct {
	Seed    int64
	stock   CardList
	discard CardList
	rng     *rand.Rand
}

// Options controls how many physical decks are combined and how many
// jokers (WithJokers) are added with each of them before the shoe is
// shuffled.
type Options struct {
	NumDecks   int
	WithJokers int
}

// NewDeck builds and shuffles a deck. A seed of 0 is replaced with a
// time-derived seed, which is recorded on the returned Deck so the caller
// can persist it for later replay.
func NewDeck(opts Options, seed int64) *Deck {
	if opts.NumDecks <= 0 {
		opts.NumDecks = 1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d := &Deck{Seed: seed, rng: rand.New(rand.NewSource(seed))}
	base := StandardDeck()
	for i := 0; i < opts.NumDecks; i++ {
		d.stock.Add(base...)
		for j := 0; j < opts.WithJokers; j++ {
			d.stock.Add(New(SuitJoker, 0))
		}
	}
	d.shuffle()
	return d
}

func (d *Deck) shuffle() {
	d.rng.Shuffle(d.stock.Count(), func(i, j int) {
		d.stock[i], d.stock[j] = d.stock[j], d.stock[i]
	})
}

// Remaining is the number of cards left to draw without reshuffling.
func (d *Deck) Remaining() int {
	return d.stock.Count()
}

// DiscardTop returns the card currently on top of the discard pile, or
// Invalid if the discard pile is empty.
func (d *Deck) DiscardTop() Card {
	return d.discard.Top()
}

// DiscardCount is the number of cards sitting in the discard pile.
func (d *Deck) DiscardCount() int {
	return d.discard.Count()
}

// Draw removes and returns the top card of the stock, reshuffling the
// discard pile (keeping its top card in place) into a fresh stock when the
// stock is empty. It returns Invalid only when both piles combined cannot
// produce another card (the discard pile has at most one card).
func (d *Deck) Draw() Card {
	if d.stock.Count() == 0 {
		if !d.reshuffleFromDiscard() {
			return Invalid
		}
	}
	return d.stock.Pop()
}

func (d *Deck) reshuffleFromDiscard() bool {
	if d.discard.Count() <= 1 {
		return false
	}
	top := d.discard.Pop()
	d.stock.Add(d.discard...)
	d.discard = CardList{top}
	d.shuffle()
	return true
}

// Discard places a card face up on top of the discard pile.
func (d *Deck) Discard(c Card) {
	d.discard.Add(c)
}

// TakeDiscardTop removes and returns the discard pile's top card, for a
// caller (the draw-from-discard operation) that already peeked it via
// DiscardTop and decided to take it.
func (d *Deck) TakeDiscardTop() Card {
	return d.discard.Pop()
}

// String renders the deck's pile sizes, useful in log lines.
func (d *Deck) String() string {
	return fmt.Sprintf("deck(stock=%d discard=%d seed=%d)", d.stock.Count(), d.discard.Count(), d.Seed)
}
