package models

// Stored row types returned by the store. These mirror the denormalized
// table columns rather than the in-memory report shape.

// StoredAssessment is a row of the assessments table.
type StoredAssessment struct {
	ID               string
	RepoPath         string
	RefBefore        string
	RefAfter         string
	FilesChanged     []string
	MutationScore    float64
	StaticIssues     int
	SentinelWarnings int
	BaselineFlaky    int
	Grade            string
	ReportJSON       string
	CreatedAt        string
}

// StoredMutation is a row of the mutation_cache table.
type StoredMutation struct {
	ID           string
	AssessmentID string
	FilePath     string
	MutantID     string
	Operator     string
	LineNumber   int
	Status       string
	CreatedAt    string
}

// StoredBaseline is a row of the baselines table.
type StoredBaseline struct {
	ID         string
	RepoPath   string
	TestCmd    string
	RunCount   int
	FlakyTests []string
	PassRate   float64
	CreatedAt  string
}

// StoredFeedback is a row of the feedback table.
type StoredFeedback struct {
	ID           string
	AssessmentID string
	Outcome      string
	Context      string
	CreatedAt    string
}
