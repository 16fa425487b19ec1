package interview

import (
	"strings"
	"testing"
)

func TestBuildSystemPromptDeterministic(t *testing.T) {
	a := BuildSystemPrompt("Go Concurrency", LevelAdvanced, "", 25)
	b := BuildSystemPrompt("Go Concurrency", LevelAdvanced, "", 25)
	if a != b {
		t.Error("same inputs must produce the same prompt")
	}
}

func TestBuildSystemPromptTopicAndLevel(t *testing.T) {
	p := BuildSystemPrompt("Kubernetes", LevelBeginner, "", 25)
	if !strings.Contains(p, "INTERVIEW TOPIC: Kubernetes") {
		t.Error("prompt missing topic line")
	}
	if !strings.Contains(p, "BEGINNER level") {
		t.Error("prompt missing level")
	}
	if !strings.Contains(p, "BEGINNER LEVEL FOCUS") {
		t.Error("prompt missing beginner section")
	}
	if !strings.Contains(p, "NO CV PROVIDED") {
		t.Error("prompt missing no-cv section when context is empty")
	}
}

func TestBuildSystemPromptWithCV(t *testing.T) {
	p := BuildSystemPrompt("Python", LevelIntermediate, "Built data pipelines at Acme", 25)
	if !strings.Contains(p, "CANDIDATE'S CV/RESUME") {
		t.Error("prompt missing cv section")
	}
	if !strings.Contains(p, "Built data pipelines at Acme") {
		t.Error("prompt missing cv content")
	}
	if strings.Contains(p, "NO CV PROVIDED") {
		t.Error("no-cv section must be absent when context is given")
	}
}

func TestBuildSummaryPromptHeaders(t *testing.T) {
	p := BuildSummaryPrompt("SQL", LevelIntermediate, "user: hello\nai: hi\n")
	for _, header := range []string{
		"OVERALL PERFORMANCE",
		"KEY STRENGTHS",
		"AREAS FOR IMPROVEMENT",
		"TOPIC KNOWLEDGE SCORE",
		"COMMUNICATION SCORE",
		"RECOMMENDATION",
	} {
		if !strings.Contains(p, header) {
			t.Errorf("summary prompt missing %q header", header)
		}
	}
	if !strings.Contains(p, "user: hello") {
		t.Error("summary prompt missing transcript")
	}
}
