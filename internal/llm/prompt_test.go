package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate_UnderLimit(t *testing.T) {
	assert.Equal(t, "short text", Truncate("short text", 2000))
}

func TestTruncate_AtLimit(t *testing.T) {
	s := strings.Repeat("a", 2000)
	assert.Equal(t, s, Truncate(s, 2000))
}

func TestTruncate_OverLimit(t *testing.T) {
	s := strings.Repeat("a", 2001)

	got := Truncate(s, 2000)

	assert.Equal(t, strings.Repeat("a", 2000)+TruncationMarker, got)
	assert.Len(t, got, 2000+len(TruncationMarker))
}

func TestTruncate_CountsRunesNotBytes(t *testing.T) {
	s := strings.Repeat("ä", 10)

	got := Truncate(s, 5)

	assert.Equal(t, strings.Repeat("ä", 5)+TruncationMarker, got)
}

func TestBuildGradingPrompt_ContainsAllTexts(t *testing.T) {
	prompt := BuildGradingPrompt(
		"What is 2+2?",
		"Award 10 points for correct answer",
		"4",
		2000,
	)

	assert.Contains(t, prompt, "What is 2+2?")
	assert.Contains(t, prompt, "Award 10 points for correct answer")
	assert.Contains(t, prompt, "Student's Answer Sheet:\n4")
	assert.Contains(t, prompt, "Overall score out of 100")
}

func TestBuildGradingPrompt_TruncatesEachSection(t *testing.T) {
	long := strings.Repeat("x", 3000)

	prompt := BuildGradingPrompt(long, "rubric", "answer", 2000)

	assert.Contains(t, prompt, strings.Repeat("x", 2000)+TruncationMarker)
	assert.NotContains(t, prompt, strings.Repeat("x", 2001))
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name     string
		feedback string
		want     int
		ok       bool
	}{
		{name: "slash form", feedback: "Feedback: correct. Score: 100/100", want: 100, ok: true},
		{name: "out of form", feedback: "Overall the answer earns 85 out of 100.", want: 85, ok: true},
		{name: "score prefix", feedback: "3. Score: 72", want: 72, ok: true},
		{name: "spaced slash", feedback: "I would give this 40 / 100", want: 40, ok: true},
		{name: "no score", feedback: "Good effort, keep practicing.", ok: false},
		{name: "out of range", feedback: "Score: 250", ok: false},
		{name: "empty", feedback: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseScore(tt.feedback)

			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
