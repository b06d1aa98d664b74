package risk

// AcceptanceThreshold is the inclusive minimum score a verdict must carry to
// be accepted. Scores range over [0, 1] where higher means more likely to be
// legitimate human traffic.
const AcceptanceThreshold = 0.5

// Verdict is the outcome of asking the scoring service about one
// verification token. It is computed once per submission and never cached.
type Verdict struct {
	TokenValid    bool
	Score         float64
	ActionMatched bool
	Reasons       []string
	Fallback      bool
}

// Accepted reports whether the verdict clears the gate: the token must be
// valid, the recorded action must match the declared one, and the score must
// meet the acceptance threshold.
func (verdict Verdict) Accepted() bool {
	return verdict.TokenValid && verdict.ActionMatched && verdict.Score >= AcceptanceThreshold
}
