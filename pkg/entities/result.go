package entities

type Outcome string

const (
	// OutcomeSent means the group was delivered (or simulated in dry-run).
	OutcomeSent Outcome = "sent"

	// OutcomeSkippedDeduped means every file of the group was already
	// present in the destination history.
	OutcomeSkippedDeduped Outcome = "skipped-deduped"

	// OutcomeSkippedOversize means at least one file exceeded the size
	// cap while the skip policy was enabled.
	OutcomeSkippedOversize Outcome = "skipped-oversize"

	// OutcomeFailed means the upload attempt failed after retries.
	OutcomeFailed Outcome = "failed"
)

type SendResult struct {
	Group   MediaGroup
	Outcome Outcome
	Err     string
}

// RunSummary accumulates results over one run. Appended to by the
// single scheduling path only; results are never mutated afterwards.
type RunSummary struct {
	Sent            int
	SkippedDeduped  int
	SkippedOversize int
	Failed          int
	Results         []SendResult
}

func (s *RunSummary) Add(res SendResult) {
	s.Results = append(s.Results, res)
	switch res.Outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeSkippedDeduped:
		s.SkippedDeduped++
	case OutcomeSkippedOversize:
		s.SkippedOversize++
	case OutcomeFailed:
		s.Failed++
	}
}

func (s *RunSummary) Failures() []SendResult {
	out := make([]SendResult, 0, s.Failed)
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			out = append(out, r)
		}
	}
	return out
}
