package llm

import (
	"encoding/json"
	"strings"
)

// TaskReply is the structured shape requested from the model during task
// execution. Fields are best-effort; Parsed reports whether structured
// extraction succeeded.
type TaskReply struct {
	Success               bool
	Output                string
	Reasoning             string
	ToolsUsed             []string
	Learnings             []string
	SuggestedImprovements []string
	Parsed                bool
}

// ResearchReply is the structured shape requested during research.
type ResearchReply struct {
	Findings        []string
	Recommendations []string
	Sources         []string
	Confidence      int
	Parsed          bool
}

const rawFindingMaxLen = 300

// ParseStructuredReply leniently extracts a TaskReply from free text.
//
// Models are asked for JSON but frequently wrap it in prose or fences, or
// return none at all. When no usable JSON object is found, the reply
// degrades to output = raw text with success = true: completion is not
// correctness, but absence of information must not flip status to failure.
func ParseStructuredReply(raw string) TaskReply {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return TaskReply{Success: true, Output: raw}
	}
	reply := TaskReply{
		Success:               boolField(obj, "success", true),
		Output:                stringField(obj, "output"),
		Reasoning:             stringField(obj, "reasoning"),
		ToolsUsed:             stringsField(obj, "toolsUsed", "tools_used"),
		Learnings:             stringsField(obj, "learnings"),
		SuggestedImprovements: stringsField(obj, "suggestedImprovements", "suggested_improvements"),
		Parsed:                true,
	}
	if reply.Output == "" {
		reply.Output = raw
	}
	return reply
}

// ParseResearchReply leniently extracts a ResearchReply from free text.
//
// On parse failure it degrades to a single finding carrying the truncated
// raw text and confidence 50: not 0, since the text may still hold value,
// and not 100, since it is unverified.
func ParseResearchReply(raw string) ResearchReply {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return ResearchReply{
			Findings:   []string{truncate(strings.TrimSpace(raw), rawFindingMaxLen)},
			Confidence: 50,
		}
	}
	reply := ResearchReply{
		Findings:        stringsField(obj, "findings"),
		Recommendations: stringsField(obj, "recommendations"),
		Sources:         stringsField(obj, "sources"),
		Confidence:      intField(obj, "confidence", 50),
		Parsed:          true,
	}
	if reply.Confidence < 0 {
		reply.Confidence = 0
	}
	if reply.Confidence > 100 {
		reply.Confidence = 100
	}
	if len(reply.Findings) == 0 {
		reply.Findings = []string{truncate(strings.TrimSpace(raw), rawFindingMaxLen)}
	}
	return reply
}

// extractJSONObject finds the first balanced top-level JSON object in text,
// tolerating markdown code fences and surrounding prose.
func extractJSONObject(text string) (map[string]any, bool) {
	text = stripFences(text)
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end := balancedEnd(text, start); end > start {
			var obj map[string]any
			if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil {
				return obj, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, false
}

func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

// balancedEnd returns the index of the brace closing the object opened at
// start, or -1. String literals and escapes are respected.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			return v
		}
	}
	return ""
}

func boolField(obj map[string]any, key string, def bool) bool {
	switch v := obj[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return def
}

func intField(obj map[string]any, key string, def int) int {
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case string:
		n := 0
		ok := false
		for _, r := range strings.TrimSpace(v) {
			if r < '0' || r > '9' {
				ok = false
				break
			}
			n = n*10 + int(r-'0')
			ok = true
		}
		if ok {
			return n
		}
	}
	return def
}

func stringsField(obj map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						out = append(out, s)
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return []string{s}
			}
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
