package research

import (
	"strings"

	"github.com/meliorworks/melior/pkg/store"
	"github.com/meliorworks/melior/pkg/triage"
)

// typeCues maps keyword cues to an opportunity type, checked in order so
// the first matching family wins. The keyword match is only the initial
// classification; everything downstream dispatches on the resulting tag.
var typeCues = []struct {
	cues []string
	typ  triage.OpportunityType
}{
	{[]string{"api", "integration"}, triage.OpportunityAPI},
	{[]string{"tool", "software"}, triage.OpportunityTool},
	{[]string{"skill", "learn"}, triage.OpportunitySkill},
	{[]string{"framework", "methodology"}, triage.OpportunityFramework},
}

var (
	costLowCues  = []string{"simple", "quick", "easy"}
	costHighCues = []string{"complex", "significant", "major"}

	riskHighCues     = []string{"replace", "overhaul", "critical"}
	riskAdditiveCues = []string{"add", "enhance"}
)

// opportunityBuilders is the per-type dispatch table. Each handler finishes
// an opportunity for its variant; an unknown tag cannot fall through
// silently because classifyType only produces table keys.
var opportunityBuilders = map[triage.OpportunityType]func(o *triage.Opportunity){
	triage.OpportunityAPI: func(o *triage.Opportunity) {
		o.EstimatedBenefit = "Extends the agent's reach through a new integration"
	},
	triage.OpportunityTool: func(o *triage.Opportunity) {
		o.EstimatedBenefit = "Adds tooling that shortens the agent's execution path"
	},
	triage.OpportunitySkill: func(o *triage.Opportunity) {
		o.EstimatedBenefit = "Deepens the agent's competence on recurring work"
	},
	triage.OpportunityFramework: func(o *triage.Opportunity) {
		o.EstimatedBenefit = "Structures the agent's approach around a proven method"
	},
	triage.OpportunityBestPractice: func(o *triage.Opportunity) {
		o.EstimatedBenefit = "Improves day-to-day execution quality at low effort"
	},
}

func classifyType(text string) triage.OpportunityType {
	lower := strings.ToLower(text)
	for _, entry := range typeCues {
		for _, cue := range entry.cues {
			if strings.Contains(lower, cue) {
				return entry.typ
			}
		}
	}
	return triage.OpportunityBestPractice
}

func classifyCost(text string) triage.CostBucket {
	lower := strings.ToLower(text)
	for _, cue := range costLowCues {
		if strings.Contains(lower, cue) {
			return triage.CostLow
		}
	}
	for _, cue := range costHighCues {
		if strings.Contains(lower, cue) {
			return triage.CostHigh
		}
	}
	return triage.CostMedium
}

// classifyRisk checks destructive cues first: a recommendation that both
// replaces and adds is still a replacement.
func classifyRisk(text string, typ triage.OpportunityType) store.RiskLevel {
	lower := strings.ToLower(text)
	for _, cue := range riskHighCues {
		if strings.Contains(lower, cue) {
			return store.RiskHigh
		}
	}
	if typ == triage.OpportunityBestPractice {
		return store.RiskLow
	}
	for _, cue := range riskAdditiveCues {
		if strings.Contains(lower, cue) {
			return store.RiskLow
		}
	}
	return store.RiskMedium
}

const ratingBonusAbove = 80

// buildOpportunity classifies one recommendation and dispatches to the
// per-type handler.
func buildOpportunity(recommendation string, confidence int, performanceRating float64) triage.Opportunity {
	typ := classifyType(recommendation)
	relevance := confidence
	if performanceRating > ratingBonusAbove {
		relevance += 10
	}
	if relevance > 100 {
		relevance = 100
	}
	opp := triage.Opportunity{
		Type:        typ,
		Name:        opportunityName(recommendation),
		Description: recommendation,
		Relevance:   relevance,
		Cost:        classifyCost(recommendation),
		Risk:        classifyRisk(recommendation, typ),
	}
	opportunityBuilders[typ](&opp)
	return opp
}

const maxOpportunityNameLen = 60

func opportunityName(recommendation string) string {
	name := strings.TrimSpace(recommendation)
	if len(name) > maxOpportunityNameLen {
		name = strings.TrimSpace(name[:maxOpportunityNameLen])
	}
	return name
}
