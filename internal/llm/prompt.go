package llm

import (
	"fmt"
	"regexp"
	"strconv"
)

// TruncationMarker is appended whenever a text block had to be cut to fit
// the grading prompt.
const TruncationMarker = "..."

// Truncate cuts s to at most maxLen runes and appends the truncation marker.
// Text at or below the limit passes through unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen]) + TruncationMarker
}

// BuildGradingPrompt assembles the fixed grading template. Each text block is
// truncated to maxLen runes to respect the grading model's input limits.
func BuildGradingPrompt(questionPaper, gradingRubric, answerSheet string, maxLen int) string {
	return fmt.Sprintf(`Grade the student's answer sheet below.

Question Paper:
%s

Grading Rubric:
%s

Student's Answer Sheet:
%s

Provide your feedback in exactly three numbered sections:
1. Brief feedback on the student's answers
2. Key areas for improvement
3. Overall score out of 100`,
		Truncate(questionPaper, maxLen),
		Truncate(gradingRubric, maxLen),
		Truncate(answerSheet, maxLen),
	)
}

var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d{1,3})\s*(?:/\s*100|out\s+of\s+100)`),
	regexp.MustCompile(`(?i)score\s*[:\-]?\s*(\d{1,3})`),
}

// ParseScore pulls the numeric score out of free-text feedback. The feedback
// itself is always stored verbatim; this only feeds the queryable score
// column. Returns false when no pattern matches or the value is out of range.
func ParseScore(feedback string) (int, bool) {
	for _, pattern := range scorePatterns {
		match := pattern.FindStringSubmatch(feedback)
		if match == nil {
			continue
		}

		score, err := strconv.Atoi(match[1])
		if err != nil || score < 0 || score > 100 {
			continue
		}

		return score, true
	}

	return 0, false
}
