package approval

// RiskLevel is a discrete severity bucket derived from a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskSeverity = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Severity returns the ordinal rank of the level; unknown levels rank lowest.
func (l RiskLevel) Severity() int { return riskSeverity[l] }

// MoreSevere returns the higher-ranked of the two levels.
func MoreSevere(a, b RiskLevel) RiskLevel {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// RiskLevelForScore maps a combined score to a severity bucket.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.8:
		return RiskCritical
	case score >= 0.6:
		return RiskHigh
	case score >= 0.3:
		return RiskMedium
	}
	return RiskLow
}

// RiskDetails carries per-dimension scores in [0,1].
type RiskDetails struct {
	Security          float64 `json:"security"`
	DataImpact        float64 `json:"dataImpact"`
	UserImpact        float64 `json:"userImpact"`
	BusinessImpact    float64 `json:"businessImpact"`
	OperationalImpact float64 `json:"operationalImpact"`
}

// RiskWeights combines the per-dimension scores into a single score. Weights
// are normalised at evaluation time so they do not have to sum to 1.
type RiskWeights struct {
	Security          float64 `json:"security" yaml:"security"`
	DataImpact        float64 `json:"dataImpact" yaml:"dataImpact"`
	UserImpact        float64 `json:"userImpact" yaml:"userImpact"`
	BusinessImpact    float64 `json:"businessImpact" yaml:"businessImpact"`
	OperationalImpact float64 `json:"operationalImpact" yaml:"operationalImpact"`
}

// DefaultRiskWeights returns the standard dimension weighting.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		Security:          0.30,
		DataImpact:        0.25,
		UserImpact:        0.20,
		BusinessImpact:    0.15,
		OperationalImpact: 0.10,
	}
}

// RiskAssessment is a structured estimate of the potential harm of letting an
// action proceed unsupervised.
type RiskAssessment struct {
	Level           RiskLevel   `json:"level"`
	Score           float64     `json:"score"`
	Factors         []Factor    `json:"factors,omitempty"`
	Details         RiskDetails `json:"details"`
	Recommendations []string    `json:"recommendations,omitempty"`
	Mitigations     []string    `json:"mitigations,omitempty"`
}
