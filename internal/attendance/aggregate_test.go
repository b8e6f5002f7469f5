package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"attendtrack/internal/subject"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		name           string
		present, total int
		want           float64
	}{
		{"no records", 0, 0, 0},
		{"all present", 4, 4, 100},
		{"none present", 0, 3, 0},
		{"two thirds", 2, 3, 66.67},
		{"one third", 1, 3, 33.33},
		{"seven of eight", 7, 8, 87.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentage(tt.present, tt.total))
		})
	}
}

func TestBandOfBoundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want Band
	}{
		{100, High},
		{85.01, High},
		{85, Medium},
		{80, Medium},
		{75, Medium},
		{74.99, Low},
		{0, Low},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandOf(tt.pct), "pct %v", tt.pct)
	}
}

func sampleCounts() []SubjectCount {
	raw := []RawCount{
		{Subject: subject.Subject{ID: 1, Name: "Machine Learning", Code: "MVJ22CS62"}, Present: 8, Total: 10},
		{Subject: subject.Subject{ID: 2, Name: "Machine Learning Lab", Code: "MVJ22CSL66"}, Present: 4, Total: 5},
		{Subject: subject.Subject{ID: 3, Name: "Major Project Phase - I", Code: "MVJ22CSP65"}, Present: 3, Total: 3},
		{Subject: subject.Subject{ID: 4, Name: "Library", Code: "LIB"}, Present: 0, Total: 4},
		{Subject: subject.Subject{ID: 5, Name: "Remedial Maths", Code: "MATREM"}, Present: 1, Total: 6},
	}
	return Categorize(raw, subject.NewClassifier(subject.DefaultRules))
}

func TestCategorize(t *testing.T) {
	counts := sampleCounts()
	want := []subject.Category{subject.Theory, subject.Lab, subject.ProjectElective, subject.LibraryPE, subject.Remedial}
	for i, c := range counts {
		assert.Equal(t, want[i], c.Category, c.Name)
	}
	assert.Equal(t, 80.0, counts[0].Percentage)
	assert.Equal(t, Medium, counts[0].Band)
	assert.Equal(t, 0.0, counts[3].Percentage)
	assert.Equal(t, Low, counts[3].Band)
}

func TestOverallHonoursInclusion(t *testing.T) {
	counts := sampleCounts()
	tests := []struct {
		name string
		in   Inclusion
		want float64
	}{
		// 15 of 18
		{"core only", Inclusion{}, 83.33},
		// 15 of 22
		{"with library", Inclusion{LibraryPE: true}, 68.18},
		// 16 of 24
		{"with remedial", Inclusion{Remedial: true}, 66.67},
		// 16 of 28
		{"everything", Inclusion{LibraryPE: true, Remedial: true}, 57.14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overall(counts, tt.in))
		})
	}
}

func TestOverallToggleIsIdempotent(t *testing.T) {
	counts := sampleCounts()
	before := Overall(counts, Inclusion{})
	on := Overall(counts, Inclusion{LibraryPE: true})
	assert.NotEqual(t, before, on)
	assert.Equal(t, before, Overall(counts, Inclusion{}))
	assert.Equal(t, Overall(counts, Inclusion{}), Overall(counts, Inclusion{}))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, Inclusion{LibraryPE: true})
	assert.Equal(t, 0.0, s.Overall)
	assert.Equal(t, Low, s.OverallBand)
	assert.True(t, s.Inclusion.LibraryPE)
}

func TestByCategory(t *testing.T) {
	groups := ByCategory(sampleCounts())
	assert.Len(t, groups[subject.Theory], 1)
	assert.Len(t, groups[subject.Lab], 1)
	assert.Len(t, groups[subject.Remedial], 1)
	assert.Equal(t, "Library", groups[subject.LibraryPE][0].Name)
}
