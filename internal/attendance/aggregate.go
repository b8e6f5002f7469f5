package attendance

import (
	"math"

	"attendtrack/internal/subject"
)

// Band is the colour/status bucket of a percentage.
type Band string

const (
	High   Band = "high"
	Medium Band = "medium"
	Low    Band = "low"
)

// Percentage returns present/total*100 rounded to two decimals, 0 when total is 0.
func Percentage(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(present) / float64(total) * 100)
}

// BandOf buckets a percentage: above 85 is high, 75..85 inclusive is medium.
func BandOf(pct float64) Band {
	switch {
	case pct > 85:
		return High
	case pct >= 75:
		return Medium
	default:
		return Low
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Inclusion carries the optional-category toggles for the overall percentage.
type Inclusion struct {
	LibraryPE bool `json:"library_pe"`
	Remedial  bool `json:"remedial"`
}

// Includes reports whether subjects of category c count towards the overall figure.
// Theory, lab and project/elective subjects always count.
func (in Inclusion) Includes(c subject.Category) bool {
	switch c {
	case subject.LibraryPE:
		return in.LibraryPE
	case subject.Remedial:
		return in.Remedial
	default:
		return true
	}
}

// SubjectCount is one subject with its folded attendance counts.
type SubjectCount struct {
	subject.Subject
	Category   subject.Category `json:"category"`
	Present    int              `json:"present_count"`
	Total      int              `json:"total_count"`
	Percentage float64          `json:"percentage"`
	Band       Band             `json:"band"`
}

// Summary is the per-subject breakdown plus the overall figure for one inclusion setting.
type Summary struct {
	Subjects    []SubjectCount `json:"subjects"`
	Overall     float64        `json:"overall"`
	OverallBand Band           `json:"overall_band"`
	Inclusion   Inclusion      `json:"inclusion"`
}

// Categorize attaches category, percentage and band to raw counts.
func Categorize(raw []RawCount, c *subject.Classifier) []SubjectCount {
	out := make([]SubjectCount, 0, len(raw))
	for _, r := range raw {
		pct := Percentage(r.Present, r.Total)
		out = append(out, SubjectCount{
			Subject:    r.Subject,
			Category:   c.Classify(r.Subject),
			Present:    r.Present,
			Total:      r.Total,
			Percentage: pct,
			Band:       BandOf(pct),
		})
	}
	return out
}

// Overall sums present and total over the included subjects, then divides once.
func Overall(subjects []SubjectCount, in Inclusion) float64 {
	var present, total int
	for _, s := range subjects {
		if !in.Includes(s.Category) {
			continue
		}
		present += s.Present
		total += s.Total
	}
	return Percentage(present, total)
}

// Summarize builds a Summary from categorized counts.
func Summarize(subjects []SubjectCount, in Inclusion) Summary {
	overall := Overall(subjects, in)
	return Summary{
		Subjects:    subjects,
		Overall:     overall,
		OverallBand: BandOf(overall),
		Inclusion:   in,
	}
}

// ByCategory groups subjects for sectioned display, preserving input order.
func ByCategory(subjects []SubjectCount) map[subject.Category][]SubjectCount {
	out := make(map[subject.Category][]SubjectCount, len(subject.Categories))
	for _, s := range subjects {
		out[s.Category] = append(out[s.Category], s)
	}
	return out
}
