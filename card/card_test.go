package card

import "testing"

func TestValue_DefaultRanks(t *testing.T) {
	cases := []struct {
		card Card
		want int
	}{
		{New(SuitSpades, 1), 1},   // ace
		{New(SuitSpades, 2), -2},  // two
		{New(SuitSpades, 7), 7},   // seven, no lucky sevens
		{New(SuitSpades, 10), 10}, // ten, no ten penny
		{New(SuitSpades, 11), 10}, // jack
		{New(SuitSpades, 12), 10}, // queen
		{New(SuitSpades, 13), 0},  // king, no super kings
		{New(SuitSpades, 5), 5},
	}
	for _, c := range cases {
		if got := c.card.Value(ValueOptions{}); got != c.want {
			t.Fatalf("%s.Value() = %d, want %d", c.card, got, c.want)
		}
	}
}

func TestValue_OptionFlagsOverrideRank(t *testing.T) {
	king := New(SuitHearts, 13)
	if got := king.Value(ValueOptions{SuperKings: true}); got != -2 {
		t.Fatalf("super kings: got %d, want -2", got)
	}

	seven := New(SuitHearts, 7)
	if got := seven.Value(ValueOptions{LuckySevens: true}); got != 0 {
		t.Fatalf("lucky sevens: got %d, want 0", got)
	}

	ten := New(SuitHearts, 10)
	if got := ten.Value(ValueOptions{TenPenny: true}); got != 1 {
		t.Fatalf("ten penny: got %d, want 1", got)
	}
}

func TestValue_Joker(t *testing.T) {
	jk := New(SuitJoker, 0)
	if got := jk.Value(ValueOptions{}); got != -2 {
		t.Fatalf("plain joker: got %d, want -2", got)
	}
	if got := jk.Value(ValueOptions{LuckySwingJoker: true}); got != -5 {
		t.Fatalf("lucky swing joker: got %d, want -5", got)
	}
}

func TestStringAndParse_RoundTrip(t *testing.T) {
	for _, c := range StandardDeck() {
		s := c.String()
		parsed, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if parsed != c {
			t.Fatalf("round trip mismatch: %s -> %q -> %s", c, s, parsed)
		}
	}
}

func TestParse_Joker(t *testing.T) {
	jk, err := Parse("JK")
	if err != nil {
		t.Fatalf("Parse(JK) error: %v", err)
	}
	if !jk.IsJoker() {
		t.Fatalf("expected joker, got %s", jk)
	}
}

func TestParse_InvalidInput(t *testing.T) {
	if _, err := Parse("Z"); err == nil {
		t.Fatalf("expected error for too-short code")
	}
	if _, err := Parse("Ax"); err == nil {
		t.Fatalf("expected error for bad suit")
	}
	if _, err := Parse("Zs"); err == nil {
		t.Fatalf("expected error for bad rank")
	}
}

func TestInvalid_DegradesSafely(t *testing.T) {
	if Invalid.Rank() != 0 {
		t.Fatalf("Invalid.Rank() = %d, want 0", Invalid.Rank())
	}
	if Invalid.Suit() != SuitJoker {
		t.Fatalf("Invalid.Suit() = %v, want SuitJoker", Invalid.Suit())
	}
	if Invalid.String() != "??" {
		t.Fatalf("Invalid.String() = %q, want \"??\"", Invalid.String())
	}
}
