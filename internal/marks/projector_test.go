package marks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestProject(t *testing.T) {
	tests := []struct {
		name     string
		scores   [3]*float64
		average  string
		message  string
		severity Severity
		required *float64
	}{
		{
			name:     "nothing entered",
			average:  "--",
			message:  "Enter marks to see statistics",
			severity: Info,
		},
		{
			name:     "first assessment only",
			scores:   [3]*float64{f(18), nil, nil},
			average:  "18.00",
			message:  "Min 21.0 in IA-2 & IA-3 for 20 avg",
			severity: Info,
			required: f(21),
		},
		{
			name:     "two entered",
			scores:   [3]*float64{f(10), f(10), nil},
			average:  "10.00",
			message:  "Min 40.0 in IA-3 for 20 avg",
			severity: Info,
			required: f(40),
		},
		{
			name:     "low first score still reachable",
			scores:   [3]*float64{f(2), nil, nil},
			average:  "2.00",
			message:  "Min 29.0 in IA-2 & IA-3 for 20 avg",
			severity: Info,
			required: f(29),
		},
		{
			name:     "all entered below target",
			scores:   [3]*float64{f(5), f(5), f(5)},
			average:  "5.00",
			message:  "Average not achieved (5.00/20)",
			severity: Warning,
		},
		{
			name:     "all entered on target",
			scores:   [3]*float64{f(20), f(20), f(20)},
			average:  "20.00",
			message:  "✓ Average achieved!",
			severity: Success,
		},
		{
			name:     "already safe",
			scores:   [3]*float64{f(30), f(30), nil},
			average:  "30.00",
			message:  "✓ Already safe for 20+ average!",
			severity: Success,
			required: f(0),
		},
		{
			name:     "not achievable",
			scores:   [3]*float64{f(0), f(5), nil},
			average:  "2.50",
			message:  "Target of 20 avg not achievable",
			severity: Warning,
			required: f(55),
		},
		{
			name:     "exactly fifty needed is achievable",
			scores:   [3]*float64{f(5), f(5), nil},
			average:  "5.00",
			message:  "Min 50.0 in IA-3 for 20 avg",
			severity: Info,
			required: f(50),
		},
		{
			name:     "gap names the missing assessments",
			scores:   [3]*float64{nil, f(18), nil},
			average:  "18.00",
			message:  "Min 21.0 in IA-1 & IA-3 for 20 avg",
			severity: Info,
			required: f(21),
		},
		{
			name:     "rounds for display only",
			scores:   [3]*float64{f(17.5), f(17.4), nil},
			average:  "17.45",
			message:  "Min 25.1 in IA-3 for 20 avg",
			severity: Info,
			required: f(60 - 17.5 - 17.4),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project(tt.scores)
			assert.Equal(t, tt.average, p.Average)
			assert.Equal(t, tt.message, p.Message)
			assert.Equal(t, tt.severity, p.Severity)
			if tt.required == nil {
				assert.Nil(t, p.Required)
				return
			}
			require.NotNil(t, p.Required)
			assert.InDelta(t, *tt.required, *p.Required, 1e-9)
		})
	}
}
