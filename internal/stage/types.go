package stage

// Contract structs for the payloads exchanged between the coordinator and the
// stage adapters. All of them travel through the message envelope's canonical
// JSON form, so field tags are the wire contract.

type ResearchRequest struct {
	Topic      string `json:"topic"`
	Query      string `json:"query,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type SearchResult struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Snippet     string  `json:"snippet,omitempty"`
	Domain      string  `json:"domain"`
	Content     string  `json:"content"`
	Confidence  float64 `json:"confidence"`
	LastUpdated string  `json:"last_updated,omitempty"`
}

type ResearchResponse struct {
	Status      string         `json:"status"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
}

type VerifyRequest struct {
	Results []SearchResult `json:"results"`
}

// SourceAssessment is the per-source verdict inside a Verification.
type SourceAssessment struct {
	URL    string  `json:"url"`
	Domain string  `json:"domain"`
	Score  float64 `json:"score"`
	Tier   string  `json:"tier"` // credible, questionable, unreliable
}

type Verification struct {
	CredibilityScore float64            `json:"credibility_score"`
	SourceAnalysis   []SourceAssessment `json:"source_analysis"`
	FactChecks       []string           `json:"fact_checks,omitempty"`
	Recommendations  []string           `json:"recommendations,omitempty"`
	Warnings         []string           `json:"warnings,omitempty"`
}

type VerifyResponse struct {
	Status       string        `json:"status"`
	Verification *Verification `json:"verification"`
}

type SynthesisRequest struct {
	Topic        string         `json:"topic"`
	Results      []SearchResult `json:"results"`
	Verification *Verification  `json:"verification,omitempty"`
}

type Synthesis struct {
	ExecutiveSummary string   `json:"executive_summary"`
	KeyFindings      []string `json:"key_findings,omitempty"`
	Trends           []string `json:"trends,omitempty"`
	Agreements       []string `json:"agreements,omitempty"`
	Disagreements    []string `json:"disagreements,omitempty"`
	KnowledgeGaps    []string `json:"knowledge_gaps,omitempty"`
	SourceCount      int      `json:"source_count"`
	SynthesisDate    string   `json:"synthesis_date"`
}

type SynthesisResponse struct {
	Status    string     `json:"status"`
	Synthesis *Synthesis `json:"synthesis"`
}

type RenderRequest struct {
	Topic      string     `json:"topic"`
	Synthesis  *Synthesis `json:"synthesis"`
	Format     string     `json:"format"`
	IncludeTOC bool       `json:"include_toc,omitempty"`
	Template   string     `json:"template,omitempty"`
}

type Report struct {
	Filepath string   `json:"filepath"`
	Filename string   `json:"filename"`
	Format   string   `json:"format"`
	Size     int64    `json:"size"`
	Sections []string `json:"sections"`
}

type RenderResponse struct {
	Status string  `json:"status"`
	Report *Report `json:"report"`
}
