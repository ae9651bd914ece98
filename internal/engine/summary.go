package engine

import "github.com/avandenberg/chargeclaim/internal/domain"

// Result is the terminal state one candidate session reached.
type Result struct {
	Session domain.ChargingSession
	Outcome domain.Outcome
	Detail  string
}

// Summary reports what a run did with each candidate.
type Summary struct {
	DryRun  bool
	Results []Result
}

// Count returns how many candidates ended in the given outcome.
func (s *Summary) Count(outcome domain.Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}
