package golf

// Options is the rule-variant bundle for one game. Every field round-trips
// through events and the state cache even when it has no effect on scoring
// (see Wolfpack and NegativePairsKeepValue below), so that a client can
// always display the full set of rules a room was configured with.
type Options struct {
	// Standard options.
	FlipOnDiscard bool `json:"flip_on_discard"` // flip a hole card after discarding the drawn card
	InitialFlips  int  `json:"initial_flips"`   // cards each player flips before play starts: 0, 1 or 2
	KnockPenalty  bool `json:"knock_penalty"`   // +10 to the finisher if they didn't have the lowest score
	UseJokers     bool `json:"use_jokers"`      // add jokers to the shoe

	// Point modifiers.
	LuckySwing  bool `json:"lucky_swing"`  // one joker worth -5, instead of two jokers worth -2 each
	SuperKings  bool `json:"super_kings"`  // kings worth -2 instead of 0
	LuckySevens bool `json:"lucky_sevens"` // sevens worth 0 instead of 7
	TenPenny    bool `json:"ten_penny"`    // tens worth 1 instead of 10

	// Bonuses and penalties.
	KnockBonus    bool `json:"knock_bonus"`    // -5 to the first player who reveals all six cards
	UnderdogBonus bool `json:"underdog_bonus"` // -3 to the lowest scorer(s) of the round
	TiedShame     bool `json:"tied_shame"`     // +5 to every player tied with another player's score
	Blackjack     bool `json:"blackjack"`      // a hole score of exactly 21 becomes 0

	// Gameplay twists.
	QueensWild  bool `json:"queens_wild"`   // queens pair with any rank for column matching
	FourOfAKind bool `json:"four_of_a_kind"` // four cards of one rank in the grid all score 0
	EagleEye    bool `json:"eagle_eye"`     // a paired pair of jokers scores -8 instead of cancelling

	// Recognized but inert: present in the wire protocol and round-tripped
	// through every event and cache record, but applied nowhere in
	// scoring. Neither has a defined effect in the source this rule set
	// was distilled from; implementers must confirm intended behavior
	// before wiring them to anything.
	Wolfpack               bool `json:"wolfpack"`
	NegativePairsKeepValue bool `json:"negative_pairs_keep_value"`
}

// deckJokerCount is the number of jokers added with each physical deck
// of the shoe (card.Options.WithJokers; the deck count is Config.NumDecks):
// none without UseJokers, one under LuckySwing, two otherwise.
func (o Options) deckJokerCount() int {
	if !o.UseJokers {
		return 0
	}
	if o.LuckySwing {
		return 1
	}
	return 2
}
