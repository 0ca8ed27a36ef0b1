package chain

import (
	"github.com/viant/hitl/model/approval"
)

type levelOutcome int

const (
	levelPending levelOutcome = iota
	levelApproved
	levelRejected
)

// decideLevel evaluates level completion from the history entries belonging
// to that level. Each approver's latest vote counts once; a system vote
// (auto-approve on timeout) approves the level regardless of policy.
func decideLevel(level *approval.Level, entries []approval.HistoryEntry) levelOutcome {
	votes := map[string]approval.Decision{}
	for _, entry := range entries {
		switch entry.Decision {
		case approval.DecisionApproved, approval.DecisionRejected:
			votes[entry.Approver] = entry.Decision
		}
	}
	if votes[approval.SystemApprover] == approval.DecisionApproved {
		return levelApproved
	}

	approvals, rejections := 0, 0
	for _, decision := range votes {
		if decision == approval.DecisionApproved {
			approvals++
		} else {
			rejections++
		}
	}
	total := len(level.Approvers)
	if total == 0 {
		if approvals > 0 {
			return levelApproved
		}
		return levelPending
	}

	switch level.Policy {
	case approval.PolicyAll:
		if rejections > 0 {
			return levelRejected
		}
		if approvals >= total {
			return levelApproved
		}
	case approval.PolicyMajority:
		need := total/2 + 1
		if approvals >= need {
			return levelApproved
		}
		if rejections >= need {
			return levelRejected
		}
	case approval.PolicyThreshold:
		threshold := level.Threshold
		if threshold < 1 {
			threshold = 1
		}
		if threshold > total {
			threshold = total
		}
		if approvals >= threshold {
			return levelApproved
		}
		if rejections > total-threshold {
			return levelRejected
		}
	default: // PolicyAny
		if approvals > 0 {
			return levelApproved
		}
		if rejections >= total {
			return levelRejected
		}
	}
	return levelPending
}
