// Package cpu manages CPU-player personality profiles and the policy
// interface the room orchestrator calls to drive a CPU seat's turn.
// Concrete skill heuristics are intentionally out of scope here (see
// RandomLegalPolicy); this package only owns the profile lifecycle and
// the decision contract external policies must satisfy.
package cpu

// Profile is a pre-defined CPU personality: display traits plus a few
// numeric dials a Policy implementation may use to bias its decisions.
// Fields mirror the original game's CPUProfile dataclass.
type Profile struct {
	Name             string  `json:"name"`
	Style            string  `json:"style"`
	SwapThreshold    int     `json:"swap_threshold"`
	PairHope         float64 `json:"pair_hope"`
	Aggression       float64 `json:"aggression"`
	Unpredictability float64 `json:"unpredictability"`
}

// DefaultProfiles is the built-in personality roster, used when no
// override bundle is loaded via Registry.LoadFromFile.
var DefaultProfiles = []Profile{
	{Name: "Sofia", Style: "Calculated & Patient", SwapThreshold: 4, PairHope: 0.2, Aggression: 0.2, Unpredictability: 0.02},
	{Name: "Maya", Style: "Aggressive Closer", SwapThreshold: 6, PairHope: 0.4, Aggression: 0.85, Unpredictability: 0.1},
	{Name: "Priya", Style: "Pair Hunter", SwapThreshold: 7, PairHope: 0.8, Aggression: 0.5, Unpredictability: 0.05},
	{Name: "Marcus", Style: "Steady Eddie", SwapThreshold: 5, PairHope: 0.35, Aggression: 0.4, Unpredictability: 0.03},
	{Name: "Kenji", Style: "Risk Taker", SwapThreshold: 8, PairHope: 0.7, Aggression: 0.75, Unpredictability: 0.12},
	{Name: "Diego", Style: "Chaotic Gambler", SwapThreshold: 6, PairHope: 0.5, Aggression: 0.6, Unpredictability: 0.28},
	{Name: "River", Style: "Adaptive Strategist", SwapThreshold: 5, PairHope: 0.45, Aggression: 0.55, Unpredictability: 0.08},
	{Name: "Sage", Style: "Sneaky Finisher", SwapThreshold: 5, PairHope: 0.3, Aggression: 0.9, Unpredictability: 0.15},
}
