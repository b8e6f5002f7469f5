package subject

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Subject is a course row owned by exactly one student.
type Subject struct {
	ID        int64  `json:"id"`
	StudentID int64  `json:"student_id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	// Elective marks membership in the student's project/elective list.
	Elective bool `json:"elective"`
}

// Category groups subjects for inclusion in the overall percentage. It is never stored.
type Category string

const (
	Theory          Category = "theory"
	Lab             Category = "lab"
	ProjectElective Category = "project_elective"
	LibraryPE       Category = "library_pe"
	Remedial        Category = "remedial"
)

// Categories lists every category in display order.
var Categories = []Category{Theory, Lab, ProjectElective, LibraryPE, Remedial}

// Seed is a default subject created for every new student.
type Seed struct {
	Name     string
	Code     string
	Elective bool
}

// DefaultSeeds are inserted at registration before the student's own electives.
var DefaultSeeds = []Seed{
	{Name: "Cloud Computing & Full Stack Application Development", Code: "MVJ22CS61"},
	{Name: "Cloud Computing Lab", Code: "MVJ22CS61"},
	{Name: "Machine Learning", Code: "MVJ22CS62"},
	{Name: "Machine Learning Lab", Code: "MVJ22CSL66"},
	{Name: "Major Project Phase - I", Code: "MVJ22CSP65"},
	{Name: "Blockchain Technology", Code: "MVJ22CS631"},
	{Name: "Indian Knowledge System", Code: "MVJ22IKK68"},
}

// Rule matches a subject when any of its non-empty predicates holds.
// Matching is case-sensitive.
type Rule struct {
	Category     Category `yaml:"category"`
	NameContains []string `yaml:"name_contains"`
	NameEquals   []string `yaml:"name_equals"`
	CodeContains []string `yaml:"code_contains"`
	Elective     bool     `yaml:"elective"`
}

func (r Rule) matches(s Subject) bool {
	for _, v := range r.NameContains {
		if strings.Contains(s.Name, v) {
			return true
		}
	}
	for _, v := range r.NameEquals {
		if s.Name == v {
			return true
		}
	}
	for _, v := range r.CodeContains {
		if strings.Contains(s.Code, v) {
			return true
		}
	}
	return r.Elective && s.Elective
}

// DefaultRules is the rule list used when no rules file is configured.
var DefaultRules = []Rule{
	{Category: Lab, NameContains: []string{"Lab"}},
	{Category: LibraryPE, NameEquals: []string{"Library", "Physical Education", "PE", "ITT", "Industrial Training & Tours"}},
	{Category: Remedial, CodeContains: []string{"REM"}, NameContains: []string{"Remedial"}},
	{Category: ProjectElective, Elective: true, NameEquals: []string{"Major Project Phase - I"}},
}

// Classifier evaluates rules top to bottom; the first match wins, theory otherwise.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over the given rules.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the category of s.
func (c *Classifier) Classify(s Subject) Category {
	for _, r := range c.rules {
		if r.matches(s) {
			return r.Category
		}
	}
	return Theory
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule list from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes a YAML document of the form `rules: [{category: lab, name_contains: [Lab]}]`.
func ParseRules(raw []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i, r := range f.Rules {
		if !known(r.Category) {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
	}
	return f.Rules, nil
}

func known(c Category) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}
