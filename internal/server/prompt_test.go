package server

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBuildContextualPromptSectionOrder(t *testing.T) {
	lastSeen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	analysis := UserAnalysis{
		MessageCount:    3,
		TotalMessages:   12,
		Topics:          []string{"sleep", "recovery"},
		Sentiment:       sentimentPositive,
		LastMessageTime: &lastSeen,
		EngagementLevel: engagementMedium,
	}
	summary := ConversationSummary{TotalConversations: 1, TotalMessages: 12}
	history := []HistoryTurn{
		{Role: roleUser, Content: "hello"},
		{Role: roleAssistant, Content: "hi, how are you?"},
	}

	prompt := buildContextualPrompt("user-1", "I slept well", history, analysis, summary)

	sections := []string{
		systemPersona,
		"User Profile (ID: user-1):",
		"- Total messages: 12",
		"- Engagement level: medium",
		"- Overall sentiment trend: positive",
		"- Common topics discussed: sleep, recovery",
		"- Last message was sent recently",
		"- User has 1 total conversations",
		"Recent Conversation History:",
		"User: hello",
		"Assistant: hi, how are you?",
		"Current User Message: I slept well",
		"Assistant:",
	}
	position := 0
	for _, section := range sections {
		idx := strings.Index(prompt[position:], section)
		if idx < 0 {
			t.Fatalf("section %q missing or out of order in prompt:\n%s", section, prompt)
		}
		position += idx + len(section)
	}
}

func TestBuildContextualPromptOmitsProfileForNewUser(t *testing.T) {
	analysis := UserAnalysis{
		Topics:          []string{},
		Sentiment:       sentimentNeutral,
		EngagementLevel: engagementLow,
	}
	prompt := buildContextualPrompt("user-2", "first message", nil, analysis, ConversationSummary{})

	if strings.Contains(prompt, "- Total messages:") {
		t.Fatalf("expected profile bullets omitted for zero-message user:\n%s", prompt)
	}
	if strings.Contains(prompt, "total conversations") {
		t.Fatalf("expected conversation count omitted for zero summary:\n%s", prompt)
	}
	if strings.Contains(prompt, "Recent Conversation History:") {
		t.Fatalf("expected history section omitted when empty:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User Profile (ID: user-2):") {
		t.Fatalf("expected profile header to remain:\n%s", prompt)
	}
	if !strings.HasPrefix(prompt, systemPersona) {
		t.Fatalf("expected persona to lead the prompt")
	}
}

func TestBuildContextualPromptBoundsHistory(t *testing.T) {
	history := make([]HistoryTurn, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, HistoryTurn{Role: roleUser, Content: fmt.Sprintf("turn-%d", i)})
	}
	analysis := UserAnalysis{MessageCount: 10, TotalMessages: 10, Topics: []string{}, Sentiment: sentimentNeutral, EngagementLevel: engagementLow}

	prompt := buildContextualPrompt("user-3", "now", history, analysis, ConversationSummary{TotalConversations: 1})

	if strings.Contains(prompt, "turn-3") {
		t.Fatalf("expected only the last %d turns, found turn-3:\n%s", promptHistoryTurnLimit, prompt)
	}
	for i := 4; i < 10; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("turn-%d", i)) {
			t.Fatalf("expected turn-%d in prompt:\n%s", i, prompt)
		}
	}
}

func TestPersonalizedGreeting(t *testing.T) {
	cases := []struct {
		name     string
		analysis UserAnalysis
		want     string
	}{
		{
			name:     "new user",
			analysis: UserAnalysis{},
			want:     "Hello! I'm here to support you. How are you feeling today?",
		},
		{
			name:     "high engagement wins over sentiment",
			analysis: UserAnalysis{TotalMessages: 30, EngagementLevel: engagementHigh, Sentiment: sentimentNegative},
			want:     "Welcome back! I'm glad to see you again. How have you been since we last talked?",
		},
		{
			name:     "positive sentiment",
			analysis: UserAnalysis{TotalMessages: 5, EngagementLevel: engagementLow, Sentiment: sentimentPositive},
			want:     "Hello! I noticed you've been in a positive mood lately. How are you doing today?",
		},
		{
			name:     "negative sentiment",
			analysis: UserAnalysis{TotalMessages: 5, EngagementLevel: engagementLow, Sentiment: sentimentNegative},
			want:     "Hi there. I'm here to listen and support you. What's on your mind today?",
		},
		{
			name:     "neutral",
			analysis: UserAnalysis{TotalMessages: 5, EngagementLevel: engagementLow, Sentiment: sentimentNeutral},
			want:     "Hello! How are you feeling today? I'm here to listen and support you.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := personalizedGreeting(tc.analysis); got != tc.want {
				t.Fatalf("unexpected greeting: %q", got)
			}
		})
	}
}
