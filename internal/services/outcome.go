package services

import "fmt"

// OutcomeKind is the terminal state of one evaluation.
type OutcomeKind int

const (
	Delivered OutcomeKind = iota
	Skipped
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// SkipReason explains a Skipped outcome.
type SkipReason string

const (
	ReasonNotEligible     SkipReason = "not_eligible"
	ReasonNotFound        SkipReason = "not_found"
	ReasonLockContention  SkipReason = "lock_contention"
	ReasonAlreadyReposted SkipReason = "already_reposted"
	ReasonBelowThreshold  SkipReason = "below_threshold"
	ReasonOwnPost         SkipReason = "own_post"
	ReasonWrongChannel    SkipReason = "wrong_channel"
	ReasonClaimLost       SkipReason = "claim_lost"
)

// Outcome is the result of evaluating one post. Reason is set only for
// Skipped, Err only for Failed.
type Outcome struct {
	Kind   OutcomeKind
	Reason SkipReason
	Err    error

	// Count and Threshold are filled once the snapshot has been read.
	Count     int
	Threshold int
}

func delivered(count, threshold int) Outcome {
	return Outcome{Kind: Delivered, Count: count, Threshold: threshold}
}

func skipped(r SkipReason) Outcome { return Outcome{Kind: Skipped, Reason: r} }

func failed(err error) Outcome { return Outcome{Kind: Failed, Err: err} }

func (o Outcome) String() string {
	switch o.Kind {
	case Skipped:
		return "skipped(" + string(o.Reason) + ")"
	case Failed:
		return fmt.Sprintf("failed(%v)", o.Err)
	}
	return o.Kind.String()
}
