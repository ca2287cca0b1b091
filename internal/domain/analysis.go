package domain

import "time"

// LikelyCause is one ranked hypothesis in an analysis.
type LikelyCause struct {
	Cause      string  `json:"cause"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// Analysis is an external diagnosis keyed by error signature. One analysis is
// stored per signature and reused across incidents sharing that signature.
type Analysis struct {
	ID                string        `json:"id"`
	ErrorSignature    string        `json:"error_signature"`
	Summary           string        `json:"summary"`
	LikelyCauses      []LikelyCause `json:"likely_causes"`
	RecommendedAction string        `json:"recommended_action"`
	NextSteps         []string      `json:"next_steps"`
	CreatedAt         time.Time     `json:"created_at"`
}
