package research

import (
	"testing"

	"github.com/meliorworks/melior/pkg/store"
	"github.com/meliorworks/melior/pkg/triage"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		text string
		want triage.OpportunityType
	}{
		{"Add support for a new scheduling API", triage.OpportunityAPI},
		{"Set up an integration with the CRM", triage.OpportunityAPI},
		{"Adopt a grammar checking tool", triage.OpportunityTool},
		{"Install new software for drafting", triage.OpportunityTool},
		{"Learn advanced summarization", triage.OpportunitySkill},
		{"Develop the skill of audience profiling", triage.OpportunitySkill},
		{"Apply the AIDA framework consistently", triage.OpportunityFramework},
		{"Follow a structured methodology for outreach", triage.OpportunityFramework},
		{"Write shorter subject lines", triage.OpportunityBestPractice},
		{"", triage.OpportunityBestPractice},
	}
	for _, tc := range tests {
		if got := classifyType(tc.text); got != tc.want {
			t.Errorf("classifyType(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestClassifyTypeCuePrecedence(t *testing.T) {
	// api cues are checked before tool cues, tool before skill.
	if got := classifyType("a tool for API access"); got != triage.OpportunityAPI {
		t.Errorf("got %v, want api to win over tool", got)
	}
	if got := classifyType("learn this tool"); got != triage.OpportunityTool {
		t.Errorf("got %v, want tool to win over skill", got)
	}
}

func TestClassifyCost(t *testing.T) {
	tests := []struct {
		text string
		want triage.CostBucket
	}{
		{"a quick win", triage.CostLow},
		{"simple change to templates", triage.CostLow},
		{"easy to adopt", triage.CostLow},
		{"a complex migration", triage.CostHigh},
		{"significant retraining effort", triage.CostHigh},
		{"major rework of the pipeline", triage.CostHigh},
		{"Add support for a new scheduling API", triage.CostMedium},
		// Low cues are checked before high cues.
		{"quick but complex", triage.CostLow},
	}
	for _, tc := range tests {
		if got := classifyCost(tc.text); got != tc.want {
			t.Errorf("classifyCost(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		name string
		text string
		typ  triage.OpportunityType
		want store.RiskLevel
	}{
		{"replace is destructive", "replace the template engine", triage.OpportunityTool, store.RiskHigh},
		{"overhaul is destructive", "overhaul the review flow", triage.OpportunityFramework, store.RiskHigh},
		{"critical is destructive", "touch the critical path", triage.OpportunityTool, store.RiskHigh},
		{"best practice is low", "write better openers", triage.OpportunityBestPractice, store.RiskLow},
		{"additive is low", "add a preview step", triage.OpportunityTool, store.RiskLow},
		{"enhance is low", "enhance the draft loop", triage.OpportunitySkill, store.RiskLow},
		{"plain is medium", "restructure paragraph ordering", triage.OpportunityTool, store.RiskMedium},
		// Destructive cues win even when additive cues are present.
		{"replace beats add", "replace and add checks", triage.OpportunityTool, store.RiskHigh},
		// Destructive cues win even for best practices.
		{"replace beats best practice", "replace the critical greeting", triage.OpportunityBestPractice, store.RiskHigh},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyRisk(tc.text, tc.typ); got != tc.want {
				t.Errorf("classifyRisk(%q, %v) = %v, want %v", tc.text, tc.typ, got, tc.want)
			}
		})
	}
}

func TestBuildOpportunity(t *testing.T) {
	opp := buildOpportunity("Add support for a new scheduling API", 70, 75)
	if opp.Type != triage.OpportunityAPI {
		t.Errorf("type = %v, want api", opp.Type)
	}
	if opp.Cost != triage.CostMedium {
		t.Errorf("cost = %v, want medium without simplicity cues", opp.Cost)
	}
	if opp.Risk != store.RiskLow {
		t.Errorf("risk = %v, want low for additive text", opp.Risk)
	}
	if opp.Relevance != 70 {
		t.Errorf("relevance = %d, want confidence unchanged at rating 75", opp.Relevance)
	}
	if opp.Description != "Add support for a new scheduling API" {
		t.Errorf("description = %q", opp.Description)
	}
	if opp.EstimatedBenefit == "" {
		t.Error("benefit is empty, want handler-provided text")
	}
}

func TestBuildOpportunityRatingBonus(t *testing.T) {
	tests := []struct {
		confidence int
		rating     float64
		want       int
	}{
		{70, 85, 80},  // bonus applies above rating 80
		{70, 80, 70},  // boundary: exactly 80 gets no bonus
		{95, 90, 100}, // capped
	}
	for _, tc := range tests {
		opp := buildOpportunity("write better openers", tc.confidence, tc.rating)
		if opp.Relevance != tc.want {
			t.Errorf("relevance(conf=%d, rating=%v) = %d, want %d",
				tc.confidence, tc.rating, opp.Relevance, tc.want)
		}
	}
}
