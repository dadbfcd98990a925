package llm

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseStructuredReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want TaskReply
	}{
		{
			name: "clean json",
			raw:  `{"success": true, "output": "done", "reasoning": "straightforward", "toolsUsed": ["draft"], "learnings": ["keep it short"], "suggestedImprovements": ["add templates"]}`,
			want: TaskReply{
				Success:               true,
				Output:                "done",
				Reasoning:             "straightforward",
				ToolsUsed:             []string{"draft"},
				Learnings:             []string{"keep it short"},
				SuggestedImprovements: []string{"add templates"},
				Parsed:                true,
			},
		},
		{
			name: "explicit failure",
			raw:  `{"success": false, "output": "could not access calendar"}`,
			want: TaskReply{Success: false, Output: "could not access calendar", Parsed: true},
		},
		{
			name: "json inside markdown fence",
			raw:  "```json\n{\"success\": true, \"output\": \"fenced\"}\n```",
			want: TaskReply{Success: true, Output: "fenced", Parsed: true},
		},
		{
			name: "json buried in prose",
			raw:  `Sure! Here is the result: {"success": true, "output": "buried"} hope that helps.`,
			want: TaskReply{Success: true, Output: "buried", Parsed: true},
		},
		{
			name: "snake_case keys",
			raw:  `{"success": true, "output": "ok", "tools_used": ["editor"], "suggested_improvements": ["batch sends"]}`,
			want: TaskReply{
				Success:               true,
				Output:                "ok",
				ToolsUsed:             []string{"editor"},
				SuggestedImprovements: []string{"batch sends"},
				Parsed:                true,
			},
		},
		{
			name: "success as string",
			raw:  `{"success": "false", "output": "nope"}`,
			want: TaskReply{Success: false, Output: "nope", Parsed: true},
		},
		{
			name: "missing success defaults true",
			raw:  `{"output": "no flag here"}`,
			want: TaskReply{Success: true, Output: "no flag here", Parsed: true},
		},
		{
			name: "plain prose degrades to raw output",
			raw:  "I finished the task and everything went well.",
			want: TaskReply{Success: true, Output: "I finished the task and everything went well."},
		},
		{
			name: "broken json degrades to raw output",
			raw:  `{"success": true, "output": "unterminated`,
			want: TaskReply{Success: true, Output: `{"success": true, "output": "unterminated`},
		},
		{
			name: "empty object keeps raw as output",
			raw:  `{}`,
			want: TaskReply{Success: true, Output: `{}`, Parsed: true},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseStructuredReply(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseStructuredReply(%q)\n got %+v\nwant %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseResearchReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ResearchReply
	}{
		{
			name: "clean json",
			raw:  `{"findings": ["a", "b"], "recommendations": ["use templates"], "sources": ["blog"], "confidence": 80}`,
			want: ResearchReply{
				Findings:        []string{"a", "b"},
				Recommendations: []string{"use templates"},
				Sources:         []string{"blog"},
				Confidence:      80,
				Parsed:          true,
			},
		},
		{
			name: "missing confidence defaults to 50",
			raw:  `{"findings": ["only finding"]}`,
			want: ResearchReply{Findings: []string{"only finding"}, Confidence: 50, Parsed: true},
		},
		{
			name: "confidence clamped to 100",
			raw:  `{"findings": ["x"], "confidence": 250}`,
			want: ResearchReply{Findings: []string{"x"}, Confidence: 100, Parsed: true},
		},
		{
			name: "prose degrades to single raw finding at confidence 50",
			raw:  "Research suggests shorter subject lines perform better.",
			want: ResearchReply{
				Findings:   []string{"Research suggests shorter subject lines perform better."},
				Confidence: 50,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseResearchReply(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseResearchReply(%q)\n got %+v\nwant %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseResearchReplyTruncatesLongRawText(t *testing.T) {
	raw := strings.Repeat("x", 1000)
	got := ParseResearchReply(raw)
	if len(got.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(got.Findings))
	}
	if len(got.Findings[0]) != rawFindingMaxLen+3 {
		t.Errorf("finding length = %d, want %d", len(got.Findings[0]), rawFindingMaxLen+3)
	}
	if !strings.HasSuffix(got.Findings[0], "...") {
		t.Error("truncated finding should end with ellipsis")
	}
}
