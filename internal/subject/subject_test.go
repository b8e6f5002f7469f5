package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDefaults(t *testing.T) {
	c := NewClassifier(DefaultRules)
	tests := []struct {
		name string
		subj Subject
		want Category
	}{
		{name: "lab by name", subj: Subject{Name: "Machine Learning Lab", Code: "MVJ22CSL66"}, want: Lab},
		{name: "lowercase lab is theory", subj: Subject{Name: "Machine learning lab"}, want: Theory},
		{name: "library", subj: Subject{Name: "Library", Code: "LIB"}, want: LibraryPE},
		{name: "pe", subj: Subject{Name: "PE", Code: "PE01"}, want: LibraryPE},
		{name: "library substring is not equal", subj: Subject{Name: "Library Science"}, want: Theory},
		{name: "remedial by code", subj: Subject{Name: "Maths Support", Code: "MVJREM01"}, want: Remedial},
		{name: "remedial by name", subj: Subject{Name: "Remedial Maths", Code: "X1"}, want: Remedial},
		{name: "remedial lab is lab", subj: Subject{Name: "Remedial Lab", Code: "REM2"}, want: Lab},
		{name: "elective flag", subj: Subject{Name: "Airline Management", Code: "OE1", Elective: true}, want: ProjectElective},
		{name: "project by list", subj: Subject{Name: "Major Project Phase - I", Code: "MVJ22CSP65"}, want: ProjectElective},
		{name: "default theory", subj: Subject{Name: "Blockchain Technology", Code: "MVJ22CS631"}, want: Theory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.subj))
		})
	}
}

func TestParseRulesIsDataDriven(t *testing.T) {
	raw := []byte(`
rules:
  - category: library_pe
    name_equals: [Yoga]
  - category: lab
    name_contains: [Practical]
`)
	rules, err := ParseRules(raw)
	require.NoError(t, err)
	c := NewClassifier(rules)

	assert.Equal(t, LibraryPE, c.Classify(Subject{Name: "Yoga"}))
	assert.Equal(t, Lab, c.Classify(Subject{Name: "Physics Practical"}))
	assert.Equal(t, Theory, c.Classify(Subject{Name: "Physics Lab"}))
}

func TestParseRulesRejectsUnknownCategory(t *testing.T) {
	_, err := ParseRules([]byte("rules:\n  - category: sports\n    name_equals: [Cricket]\n"))
	assert.Error(t, err)
}
