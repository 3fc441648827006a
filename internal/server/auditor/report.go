package auditor

import "time"

const (
	KindFull        = "full"
	KindIncremental = "incremental"
)

// Report summarizes one reconciliation sweep.
type Report struct {
	Kind      string        `json:"kind"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	Records   int `json:"records"`
	Documents int `json:"documents"`
	InSync    int `json:"inSync"`

	// Outbound lists record ids pushed to the mirror, Inbound the external
	// ids applied to the SoR.
	Outbound []string `json:"outbound,omitempty"`
	Inbound  []string `json:"inbound,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Repaired is the number of divergences the sweep fixed.
func (r *Report) Repaired() int {
	return len(r.Outbound) + len(r.Inbound)
}

func (r *Report) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
}
