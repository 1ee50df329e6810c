package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"compliance-rag/config"
	"compliance-rag/types"
)

var errNoJSON = errors.New("no valid json found")

type verdictFinding struct {
	Anchor         string         `json:"anchor"`
	Text           string         `json:"text"`
	Comment        string         `json:"comment"`
	Recommendation string         `json:"recommendation"`
	Severity       string         `json:"severity"`
	Span           *types.SpanRef `json:"span"`
}

func (v verdictFinding) finding() types.Finding {
	anchor := v.Anchor
	if anchor == "" {
		anchor = v.Text
	}
	rec := v.Recommendation
	if rec == "" {
		rec = v.Comment
	}
	return types.Finding{
		Anchor:         anchor,
		Span:           v.Span,
		Recommendation: rec,
		Severity:       types.ParseSeverity(v.Severity),
	}
}

// ParseVerdict turns raw model output into findings. Accepted shapes are
// {"findings": [...]}, a bare array of findings, and a mapping of anchor to
// {"comment", "severity"}. Anything else goes through the keyword scan over
// rules and is tagged as fallback.
func ParseVerdict(raw string, rules []config.FallbackRule) types.ReviewResult {
	if findings, ok := parseStructured(raw); ok {
		return types.ReviewResult{Raw: raw, Provenance: types.ProvenanceStructured, Findings: findings}
	}
	return types.ReviewResult{Raw: raw, Provenance: types.ProvenanceFallback, Findings: scanKeywords(raw, rules)}
}

func parseStructured(raw string) ([]types.Finding, bool) {
	if obj, err := extractJSON(raw, '{', '}'); err == nil {
		if findings, ok := parseObject(obj); ok {
			return findings, true
		}
	}
	if arr, err := extractJSON(raw, '[', ']'); err == nil {
		var list []verdictFinding
		if json.Unmarshal([]byte(arr), &list) == nil {
			return toFindings(list), true
		}
	}
	return nil, false
}

func parseObject(obj string) ([]types.Finding, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, false
	}

	if rawList, ok := fields["findings"]; ok {
		var list []verdictFinding
		if err := json.Unmarshal(rawList, &list); err != nil {
			return nil, false
		}
		return toFindings(list), true
	}

	if len(fields) == 0 {
		return nil, false
	}
	anchors := make([]string, 0, len(fields))
	for anchor, value := range fields {
		if !bytes.HasPrefix(bytes.TrimSpace(value), []byte("{")) {
			return nil, false
		}
		anchors = append(anchors, anchor)
	}
	sort.Strings(anchors)

	findings := make([]types.Finding, 0, len(anchors))
	for _, anchor := range anchors {
		var v verdictFinding
		if err := json.Unmarshal(fields[anchor], &v); err != nil {
			return nil, false
		}
		v.Anchor = anchor
		findings = append(findings, v.finding())
	}
	return findings, true
}

func toFindings(list []verdictFinding) []types.Finding {
	findings := make([]types.Finding, 0, len(list))
	for _, v := range list {
		findings = append(findings, v.finding())
	}
	return findings
}

// scanKeywords flags each rule whose term appears in text, ignoring case.
func scanKeywords(text string, rules []config.FallbackRule) []types.Finding {
	lower := strings.ToLower(text)
	findings := []types.Finding{}
	for _, rule := range rules {
		if rule.Term == "" || !strings.Contains(lower, strings.ToLower(rule.Term)) {
			continue
		}
		findings = append(findings, types.Finding{
			Anchor:         rule.Term,
			Recommendation: rule.Recommendation,
			Severity:       types.ParseSeverity(rule.Severity),
		})
	}
	return findings
}

func extractJSON(s string, first, last byte) (string, error) {
	start := strings.IndexByte(s, first)
	end := strings.LastIndexByte(s, last)

	if start == -1 || end == -1 || end <= start {
		return s, errNoJSON
	}

	return s[start : end+1], nil
}
