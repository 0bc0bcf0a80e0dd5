package server

import (
	"fmt"
	"strings"
)

const systemPersona = "You are a warm, supportive, and helpful assistant trained to support users with mental health " +
	"and addiction recovery. You are not a therapist, but you offer empathetic, kind, and motivating conversation. " +
	"Always maintain a supportive and non-judgmental tone. Personalize your responses based on the user's history and patterns."

const promptHistoryTurnLimit = 6

// buildContextualPrompt assembles the single text block sent to the
// completion service. Section order is fixed: persona, user profile,
// cross-conversation count, recent history, current message, assistant cue.
// String assembly only; there are no failure modes.
func buildContextualPrompt(
	userID string,
	userMessage string,
	history []HistoryTurn,
	analysis UserAnalysis,
	summary ConversationSummary,
) string {
	parts := []string{systemPersona}

	parts = append(parts, fmt.Sprintf("\nUser Profile (ID: %s):", userID))
	if analysis.MessageCount > 0 {
		parts = append(parts, fmt.Sprintf("- Total messages: %d", analysis.TotalMessages))
		parts = append(parts, fmt.Sprintf("- Engagement level: %s", analysis.EngagementLevel))
		parts = append(parts, fmt.Sprintf("- Overall sentiment trend: %s", analysis.Sentiment))
		if len(analysis.Topics) > 0 {
			parts = append(parts, fmt.Sprintf("- Common topics discussed: %s", strings.Join(analysis.Topics, ", ")))
		}
		if analysis.LastMessageTime != nil {
			parts = append(parts, "- Last message was sent recently")
		}
	}

	if summary.TotalConversations > 0 {
		parts = append(parts, fmt.Sprintf("- User has %d total conversations", summary.TotalConversations))
	}

	if len(history) > 0 {
		parts = append(parts, "\nRecent Conversation History:")
		start := len(history) - promptHistoryTurnLimit
		if start < 0 {
			start = 0
		}
		for _, turn := range history[start:] {
			speaker := "Assistant"
			if turn.Role == roleUser {
				speaker = "User"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", speaker, turn.Content))
		}
	}

	parts = append(parts, fmt.Sprintf("\nCurrent User Message: %s", userMessage))
	parts = append(parts, "\nAssistant:")
	return strings.Join(parts, "\n")
}

// personalizedGreeting picks an opening line keyed on what we know about
// the user so far.
func personalizedGreeting(analysis UserAnalysis) string {
	if analysis.TotalMessages == 0 {
		return "Hello! I'm here to support you. How are you feeling today?"
	}
	if analysis.EngagementLevel == engagementHigh {
		return "Welcome back! I'm glad to see you again. How have you been since we last talked?"
	}
	switch analysis.Sentiment {
	case sentimentPositive:
		return "Hello! I noticed you've been in a positive mood lately. How are you doing today?"
	case sentimentNegative:
		return "Hi there. I'm here to listen and support you. What's on your mind today?"
	default:
		return "Hello! How are you feeling today? I'm here to listen and support you."
	}
}
