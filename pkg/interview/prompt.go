package interview

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt produces the interviewer system instruction for a
// session. The same inputs always produce the same prompt; the prompt is
// fixed at session start and only regenerated on CV upload.
func BuildSystemPrompt(topic string, level Level, candidateContext string, durationMinutes int) string {
	if durationMinutes <= 0 {
		durationMinutes = 25
	}
	questions := durationMinutes / 3
	if questions < 6 {
		questions = 6
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional interviewer conducting a %s level technical interview.\n\n",
		strings.ToUpper(string(level)))
	fmt.Fprintf(&b, "INTERVIEW TOPIC: %s\n\n", topic)
	b.WriteString(contextSection(topic, candidateContext))
	b.WriteString(levelSection(level))
	fmt.Fprintf(&b, `INTERVIEW FLOW:
1. Start with a warm, professional greeting
2. Ask "Tell me about yourself and your experience with %s"
3. Ask %d targeted questions based on their responses
4. Conclude with "Do you have any questions for me?"

QUESTION GUIDELINES:
- Ask ONE question at a time
- Wait for the candidate to finish speaking before responding
- Acknowledge their answer briefly before moving to the next question
- If they struggle, offer gentle hints or rephrase the question

RESPONSE STYLE:
- Keep responses conversational and natural
- Use short, clear sentences for audio output
- Be encouraging and supportive

TIMING:
- Target duration: approximately %d minutes
- Keep the interview moving; politely redirect lengthy answers

Begin the interview now with your greeting and first question.
`, topic, questions-2, durationMinutes)
	return b.String()
}

func contextSection(topic, candidateContext string) string {
	if strings.TrimSpace(candidateContext) == "" {
		return `NO CV PROVIDED:
- Focus on general questions about the interview topic
- Assess fundamentals and theoretical knowledge
- Learn about their background through the conversation

`
	}
	return fmt.Sprintf(`CANDIDATE'S CV/RESUME:
----------------------
%s
----------------------

CV-BASED INTERVIEW INSTRUCTIONS:
- Reference specific projects, skills, or experience from the CV naturally
- If the CV mentions %q experience, ask follow-up questions about those projects
- Probe deeper into technologies and tools mentioned in the CV

`, candidateContext, topic)
}

func levelSection(level Level) string {
	switch level {
	case LevelBeginner:
		return `BEGINNER LEVEL FOCUS:
- Start with fundamental concepts and definitions
- Use simple, straightforward scenarios
- Be extra encouraging and patient; provide gentle hints when stuck

`
	case LevelAdvanced:
		return `ADVANCED LEVEL FOCUS:
- Dive deep into architecture and design decisions
- Ask about edge cases, performance, and scalability
- Discuss trade-offs between approaches and real production experience

`
	default:
		return `INTERMEDIATE LEVEL FOCUS:
- Balance theory with practical application
- Ask about real-world usage and best practices
- Include some design questions and debugging approaches

`
	}
}

// BuildSummaryPrompt produces the evaluation prompt sent to the summarizer
// after the interview. The numbered section headers are what the report
// parser recognizes; keep them in sync with ParseReport.
func BuildSummaryPrompt(topic string, level Level, transcript string) string {
	return fmt.Sprintf(`Based on this %s level interview about %s, provide a structured evaluation.

INTERVIEW TRANSCRIPT:
%s

Please provide:

1. OVERALL PERFORMANCE (1-2 sentences)
2. KEY STRENGTHS (3-4 bullet points)
3. AREAS FOR IMPROVEMENT (3-4 bullet points)
4. TOPIC KNOWLEDGE SCORE (1-10)
5. COMMUNICATION SCORE (1-10)
6. RECOMMENDATION

Be constructive, specific, and encouraging in your feedback.
`, level, topic, transcript)
}
