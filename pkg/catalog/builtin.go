package catalog

// Builtin returns a small default catalog used by tests, demos and fresh
// installs without a catalog directory. Production deployments ship a full
// catalog directory instead.
func Builtin() []Definition {
	return []Definition{
		{
			Name:           "email-composer",
			Category:       "communication",
			Specialization: "Professional email drafting",
			Description:    "Drafts, tones and structures outbound email from rough intent.",
			Skills:         []string{"copywriting", "tone adaptation", "summarization"},
			Tools:          []string{"template-library", "grammar-checker"},
			APIs:           []string{"smtp"},
			Frameworks:     []string{"aida"},
			LearningFocus:  []string{"email deliverability", "persuasive writing", "audience segmentation"},
			Metrics:        []string{"open_rate", "response_rate"},
		},
		{
			Name:           "data-analyst",
			Category:       "analytics",
			Specialization: "Exploratory data analysis and reporting",
			Description:    "Turns raw tabular data into summaries, anomalies and charts.",
			Skills:         []string{"statistics", "sql", "visualization"},
			Tools:          []string{"notebook", "chart-builder"},
			APIs:           []string{"warehouse-query"},
			Frameworks:     []string{"tidy-data"},
			LearningFocus:  []string{"statistical methods", "data storytelling", "anomaly detection"},
			Metrics:        []string{"insight_rate", "report_accuracy"},
		},
		{
			Name:           "code-reviewer",
			Category:       "engineering",
			Specialization: "Pull request review and defect detection",
			Description:    "Reviews diffs for defects, style drift and missing tests.",
			Skills:         []string{"static analysis", "idiom review", "test coverage assessment"},
			Tools:          []string{"diff-viewer", "linter"},
			APIs:           []string{"source-control"},
			Frameworks:     []string{"conventional-comments"},
			LearningFocus:  []string{"secure coding", "refactoring patterns", "review ergonomics"},
			Metrics:        []string{"defects_found", "review_turnaround"},
		},
	}
}
