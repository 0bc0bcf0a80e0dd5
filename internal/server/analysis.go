package server

import (
	"context"
	"sort"
	"strings"
	"time"
)

const (
	analysisRecentMessageCap = 50
	topicLimit               = 5
	topicMinTokenLength      = 3

	engagementHigh   = "high"
	engagementMedium = "medium"
	engagementLow    = "low"

	sentimentPositive = "positive"
	sentimentNegative = "negative"
	sentimentNeutral  = "neutral"

	urgencyHigh   = "high"
	urgencyMedium = "medium"
	urgencyLow    = "low"
)

// Sentiment scoring matches whole whitespace-delimited tokens, unlike the
// per-message keyword lists below which match substrings.
var (
	positiveSentimentWords = tokenSet(
		"good", "great", "happy", "better", "improved",
		"thanks", "helpful", "positive", "progress",
	)
	negativeSentimentWords = tokenSet(
		"bad", "sad", "depressed", "anxious", "worried",
		"struggling", "difficult", "negative", "hopeless",
	)
)

var (
	crisisKeywords = []string{
		"suicide", "kill myself", "end it all",
		"don't want to live", "give up", "no reason to live",
	}
	urgentKeywords = []string{
		"emergency", "urgent", "help now", "crisis",
		"panic", "overwhelmed", "can't cope",
	}
	positiveKeywords = []string{
		"better", "improved", "happy", "good",
		"progress", "achievement", "positive", "grateful",
	}
	negativeKeywords = []string{
		"sad", "depressed", "anxious", "worried",
		"struggling", "difficult", "negative", "hopeless",
	}
	wellnessKeywords = []string{
		"therapy", "meditation", "exercise", "breathing",
		"coping", "recovery", "treatment",
	}
)

type UserAnalysis struct {
	MessageCount    int        `json:"message_count"`
	TotalMessages   int        `json:"total_messages"`
	Topics          []string   `json:"topics"`
	Sentiment       string     `json:"sentiment"`
	LastMessageTime *time.Time `json:"last_message_time"`
	EngagementLevel string     `json:"engagement_level"`
}

type MessageAnalysis struct {
	IsCrisis      bool   `json:"is_crisis"`
	IsUrgent      bool   `json:"is_urgent"`
	IsPositive    bool   `json:"is_positive"`
	IsNegative    bool   `json:"is_negative"`
	IsWellness    bool   `json:"is_wellness"`
	MessageLength int    `json:"message_length"`
	HasQuestion   bool   `json:"has_question"`
	UrgencyLevel  string `json:"urgency_level"`
}

// analyzeUserHistory derives topics, sentiment and engagement from a user's
// message history. userMessages must be user-authored messages ordered
// newest first, already capped by the store; totalMessages counts both
// roles across all time and is independent of that cap.
func analyzeUserHistory(userMessages []Message, totalMessages int) UserAnalysis {
	analysis := UserAnalysis{
		MessageCount:    len(userMessages),
		TotalMessages:   totalMessages,
		Topics:          []string{},
		Sentiment:       sentimentNeutral,
		EngagementLevel: engagementLevel(totalMessages),
	}
	if len(userMessages) == 0 {
		return analysis
	}

	lowered := make([]string, 0, len(userMessages))
	for _, message := range userMessages {
		lowered = append(lowered, strings.ToLower(message.Content))
	}
	tokens := strings.Fields(strings.Join(lowered, " "))

	analysis.Topics = topTopics(tokens, topicLimit)
	analysis.Sentiment = sentimentTrend(tokens)
	analysis.LastMessageTime = &userMessages[0].Timestamp
	return analysis
}

// topTopics ranks tokens longer than topicMinTokenLength by descending
// frequency. Equal frequencies keep first-appearance order: the stable sort
// runs over tokens in the order they were first seen.
func topTopics(tokens []string, limit int) []string {
	frequency := make(map[string]int)
	firstSeen := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) <= topicMinTokenLength {
			continue
		}
		if _, seen := frequency[token]; !seen {
			firstSeen = append(firstSeen, token)
		}
		frequency[token]++
	}

	sort.SliceStable(firstSeen, func(i, j int) bool {
		return frequency[firstSeen[i]] > frequency[firstSeen[j]]
	})
	if len(firstSeen) > limit {
		firstSeen = firstSeen[:limit]
	}
	return firstSeen
}

// sentimentTrend counts exact token matches over the same token stream used
// for topics; the short tokens skipped by topic extraction still count
// here. A strict majority wins, anything else is neutral.
func sentimentTrend(tokens []string) string {
	positiveCount := 0
	negativeCount := 0
	for _, token := range tokens {
		if _, ok := positiveSentimentWords[token]; ok {
			positiveCount++
		}
		if _, ok := negativeSentimentWords[token]; ok {
			negativeCount++
		}
	}
	switch {
	case positiveCount > negativeCount:
		return sentimentPositive
	case negativeCount > positiveCount:
		return sentimentNegative
	default:
		return sentimentNeutral
	}
}

func engagementLevel(totalMessages int) string {
	switch {
	case totalMessages > 20:
		return engagementHigh
	case totalMessages > 10:
		return engagementMedium
	default:
		return engagementLow
	}
}

// analyzeMessage classifies a single raw message. Pure and synchronous;
// keyword checks are substring containment, not token matches, so multiple
// categories can fire at once. Crisis always takes priority over urgent.
func analyzeMessage(message string) MessageAnalysis {
	lowered := strings.ToLower(message)

	analysis := MessageAnalysis{
		IsCrisis:      containsAny(lowered, crisisKeywords),
		IsUrgent:      containsAny(lowered, urgentKeywords),
		IsPositive:    containsAny(lowered, positiveKeywords),
		IsNegative:    containsAny(lowered, negativeKeywords),
		IsWellness:    containsAny(lowered, wellnessKeywords),
		MessageLength: len(message),
		HasQuestion:   strings.Contains(message, "?"),
	}

	switch {
	case analysis.IsCrisis:
		analysis.UrgencyLevel = urgencyHigh
	case analysis.IsUrgent:
		analysis.UrgencyLevel = urgencyMedium
	default:
		analysis.UrgencyLevel = urgencyLow
	}
	return analysis
}

func containsAny(lowered string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func tokenSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

// AnalysisProvider is the seam between the orchestrator and the analysis
// engine. The default implementation recomputes from the store on every
// call; a caching layer can replace it without touching the engine.
type AnalysisProvider interface {
	UserAnalysis(ctx context.Context, userID string) (UserAnalysis, error)
}

type storeAnalysisProvider struct {
	store Store
}

func (p storeAnalysisProvider) UserAnalysis(ctx context.Context, userID string) (UserAnalysis, error) {
	recent, err := p.store.RecentUserMessages(ctx, userID, analysisRecentMessageCap)
	if err != nil {
		return UserAnalysis{}, err
	}
	total, err := p.store.TotalMessages(ctx, userID)
	if err != nil {
		return UserAnalysis{}, err
	}
	return analyzeUserHistory(recent, total), nil
}
