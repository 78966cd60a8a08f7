package card

import "testing"

func TestNewDeck_SizeIncludesJokers(t *testing.T) {
	d := NewDeck(Options{NumDecks: 2, WithJokers: 1}, 42)
	if got, want := d.Remaining(), 2*(52+1); got != want {
		t.Fatalf("Remaining() = %d, want %d", got, want)
	}
}

func TestNewDeck_SameSeedDealsIdentically(t *testing.T) {
	a := NewDeck(Options{NumDecks: 1}, 7)
	b := NewDeck(Options{NumDecks: 1}, 7)
	for i := 0; i < 52; i++ {
		ca, cb := a.Draw(), b.Draw()
		if ca != cb {
			t.Fatalf("draw %d diverged: %s vs %s", i, ca, cb)
		}
	}
}

func TestDeck_DrawExhaustsThenReshufflesFromDiscard(t *testing.T) {
	d := NewDeck(Options{NumDecks: 1}, 1)
	var drawn []Card
	for i := 0; i < 52; i++ {
		drawn = append(drawn, d.Draw())
	}
	if d.Remaining() != 0 {
		t.Fatalf("expected empty stock, got %d remaining", d.Remaining())
	}

	for _, c := range drawn {
		d.Discard(c)
	}
	if d.DiscardCount() != 52 {
		t.Fatalf("DiscardCount() = %d, want 52", d.DiscardCount())
	}

	top := d.DiscardTop()
	next := d.Draw()
	if next == Invalid {
		t.Fatalf("expected reshuffle to produce a card")
	}
	if d.DiscardCount() != 1 || d.DiscardTop() != top {
		t.Fatalf("expected discard pile to keep only its top card (%s) after reshuffle, got count=%d top=%s",
			top, d.DiscardCount(), d.DiscardTop())
	}
}

func TestDeck_DrawOnSingleCardDiscardReturnsInvalid(t *testing.T) {
	d := NewDeck(Options{NumDecks: 1}, 3)
	d.Discard(d.Draw())
	for d.Remaining() > 0 {
		d.Draw()
	}
	if got := d.Draw(); got != Invalid {
		t.Fatalf("expected Invalid with only one discard card available, got %s", got)
	}
}

func TestDeck_TakeDiscardTop(t *testing.T) {
	d := NewDeck(Options{NumDecks: 1}, 9)
	c := d.Draw()
	d.Discard(c)
	if got := d.TakeDiscardTop(); got != c {
		t.Fatalf("TakeDiscardTop() = %s, want %s", got, c)
	}
	if d.DiscardCount() != 0 {
		t.Fatalf("expected discard pile empty after take, got %d", d.DiscardCount())
	}
}
