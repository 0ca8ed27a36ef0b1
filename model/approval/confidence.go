package approval

import "time"

// Factor is one weighted input to a confidence or risk evaluation. Factors
// are ephemeral; only the most recent breakdown per execution is retained.
type Factor struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Weight      float64 `json:"weight"`
	Source      string  `json:"source,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Pattern accumulates historical approval outcomes for a workflow node. It is
// updated with incremental running averages and never reset except on an
// explicit clear.
type Pattern struct {
	NodeID               string    `json:"nodeId"`
	ApprovalRate         float64   `json:"approvalRate"`
	AverageConfidence    float64   `json:"averageConfidence"`
	SuccessfulExecutions int       `json:"successfulExecutions"`
	FailedExecutions     int       `json:"failedExecutions"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

// Total returns the number of recorded outcomes.
func (p *Pattern) Total() int {
	return p.SuccessfulExecutions + p.FailedExecutions
}
