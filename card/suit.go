package card

type Suit byte

const (
	SuitSpades Suit = iota
	SuitHearts
	SuitClubs
	SuitDiamonds
	SuitJoker
)

func (s Suit) String() string {
	switch s {
	case SuitSpades:
		return "s"
	case SuitHearts:
		return "h"
	case SuitClubs:
		return "c"
	case SuitDiamonds:
		return "d"
	case SuitJoker:
		return ""
	}
	return "?"
}
