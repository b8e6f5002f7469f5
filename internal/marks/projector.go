package marks

import (
	"fmt"
	"strings"
)

const (
	// MaxScore is the maximum of one internal assessment.
	MaxScore = 50.0
	// TargetAverage is the average the projector aims for.
	TargetAverage = 20.0
	// Assessments per subject.
	Assessments = 3

	targetTotal = TargetAverage * Assessments
)

// Severity of a projection message.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
)

// Projection is the running average and target guidance for one subject.
type Projection struct {
	// Average is "--" when nothing is entered, otherwise the mean to two decimals.
	Average  string   `json:"average"`
	Message  string   `json:"target_message"`
	Severity Severity `json:"target_class"`
	// Required is the unrounded minimum per remaining assessment, set while 1 or 2 remain.
	Required *float64 `json:"required,omitempty"`
}

// Project computes the projection for up to three scores; nil means not entered.
func Project(scores [Assessments]*float64) Projection {
	var (
		sum       float64
		count     int
		remaining []string
	)
	for i, s := range scores {
		if s == nil {
			remaining = append(remaining, fmt.Sprintf("IA-%d", i+1))
			continue
		}
		sum += *s
		count++
	}
	if count == 0 {
		return Projection{Average: "--", Message: "Enter marks to see statistics", Severity: Info}
	}

	mean := sum / float64(count)
	p := Projection{Average: fmt.Sprintf("%.2f", mean)}
	if count == Assessments {
		if mean >= TargetAverage {
			p.Message, p.Severity = "✓ Average achieved!", Success
		} else {
			p.Message, p.Severity = fmt.Sprintf("Average not achieved (%.2f/20)", mean), Warning
		}
		return p
	}

	required := (targetTotal - sum) / float64(len(remaining))
	p.Required = &required
	switch {
	case required > MaxScore:
		p.Message, p.Severity = "Target of 20 avg not achievable", Warning
	case required <= 0:
		p.Message, p.Severity = "✓ Already safe for 20+ average!", Success
	default:
		p.Message = fmt.Sprintf("Min %.1f in %s for 20 avg", required, strings.Join(remaining, " & "))
		p.Severity = Info
	}
	return p
}
