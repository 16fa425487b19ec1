package interview

import (
	"regexp"
	"strconv"
	"strings"
)

// Default sub-scores used whenever the summarizer is unavailable or its
// output cannot be parsed.
const (
	defaultTopicScore   = 7
	defaultCommScore    = 7
	defaultProblemScore = 6
)

// DefaultReport is the fixed fallback evaluation. An interview that produced
// no transcribable text still yields a usable report.
func DefaultReport() Report {
	r := Report{
		Summary: "Interview completed. Performance details saved.",
		Strengths: []string{
			"Clear communication",
			"Good problem-solving approach",
			"Relevant technical knowledge",
		},
		Improvements: []string{
			"Practice more complex scenarios",
			"Improve depth of technical explanations",
			"Work on time management during answers",
		},
		TopicScore:   defaultTopicScore,
		CommScore:    defaultCommScore,
		ProblemScore: defaultProblemScore,
	}
	r.Finalize()
	return r
}

// reportSection is the parser state while scanning summarizer output.
type reportSection int

const (
	sectionNone reportSection = iota
	sectionSummary
	sectionStrengths
	sectionImprovements
	sectionTopicScore
	sectionCommScore
)

const (
	maxSummaryLen = 200
	maxListItems  = 5
)

var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*/\s*10`),
	regexp.MustCompile(`(?i)score:\s*(\d+)`),
	regexp.MustCompile(`(?i)(\d+)\s+out\s+of\s+10`),
	regexp.MustCompile(`^(\d+)$`),
}

// ParseReport converts the summarizer's semi-structured text into a Report.
// Section headers are matched case-insensitively by keyword; scores are
// extracted with the N/10 and "score: N" patterns and default to the
// mid-scale value when absent. Parsing never fails: unmatched input simply
// leaves the defaults in place.
func ParseReport(text string) Report {
	r := Report{
		Summary:    "Interview completed successfully.",
		TopicScore: defaultTopicScore,
		CommScore:  defaultCommScore,
	}
	placeholderSummary := r.Summary

	section := sectionNone
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)

		switch {
		case strings.Contains(upper, "TOPIC KNOWLEDGE SCORE"):
			section = sectionTopicScore
			if n, ok := extractScore(line); ok {
				r.TopicScore = n
				section = sectionNone
			}
			continue
		case strings.Contains(upper, "COMMUNICATION SCORE"):
			section = sectionCommScore
			if n, ok := extractScore(line); ok {
				r.CommScore = n
				section = sectionNone
			}
			continue
		case strings.Contains(upper, "STRENGTH"):
			section = sectionStrengths
			continue
		case strings.Contains(upper, "IMPROVEMENT") || strings.Contains(upper, "AREAS"):
			section = sectionImprovements
			continue
		case strings.Contains(upper, "PERFORMANCE"):
			section = sectionSummary
			continue
		case strings.Contains(upper, "RECOMMENDATION"):
			section = sectionNone
			continue
		}

		switch section {
		case sectionSummary:
			if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
				continue
			}
			if r.Summary == placeholderSummary {
				r.Summary = line
			} else if len(r.Summary) < maxSummaryLen {
				r.Summary += " " + line
			}
		case sectionStrengths:
			if item := trimBullet(line); item != "" && len(r.Strengths) < maxListItems {
				r.Strengths = append(r.Strengths, item)
			}
		case sectionImprovements:
			if item := trimBullet(line); item != "" && len(r.Improvements) < maxListItems {
				r.Improvements = append(r.Improvements, item)
			}
		case sectionTopicScore:
			if n, ok := extractScore(line); ok {
				r.TopicScore = n
				section = sectionNone
			}
		case sectionCommScore:
			if n, ok := extractScore(line); ok {
				r.CommScore = n
				section = sectionNone
			}
		}
	}

	if len(r.Strengths) == 0 {
		r.Strengths = []string{"Clear communication", "Good effort"}
	}
	if len(r.Improvements) == 0 {
		r.Improvements = []string{"Practice more scenarios"}
	}

	// Problem-solving has no independent source in the summarizer output.
	r.ProblemScore = (r.TopicScore + r.CommScore) / 2
	r.Finalize()
	return r
}

func extractScore(line string) (int, bool) {
	for _, p := range scorePatterns {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n >= 1 && n <= 10 {
			return n, true
		}
	}
	return 0, false
}

func trimBullet(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "-*•→0123456789. "))
}
