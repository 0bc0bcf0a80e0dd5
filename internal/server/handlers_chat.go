package server

import (
	"html"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	logx "supportchat/backend/pkg/logger"
)

const (
	chatHistoryTurnLimit = 10
	defaultHistoryLimit  = 20
)

// crisisNotice is appended to the in-memory response only. The persisted
// assistant message is canonical as the gateway's raw reply, so history
// replay never repeats the notice; it is re-derived per request from the
// inbound message.
const crisisNotice = "\n\n⚠️ If you're having thoughts of self-harm, please contact the National Suicide " +
	"Prevention Lifeline at 988 or 1-800-273-8255. You're not alone, and help is available 24/7."

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// chat runs the whole per-request pipeline in order: persist inbound turn,
// analyze, compose prompt, call the gateway, persist outbound turn, build
// the response payload. No step is retried and nothing already persisted is
// rolled back on a later failure.
func (a *App) chat(c *gin.Context) {
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}

	lock := a.userLocks.acquire(userID)
	defer lock.Unlock()

	ctx := c.Request.Context()

	conversation, err := a.store.GetOrCreateConversation(ctx, userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("resolve conversation failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if _, err := a.store.SaveMessage(ctx, userID, conversation.ID, roleUser, payload.Message); err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("persist user message failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	history, err := a.store.ConversationHistory(ctx, userID, chatHistoryTurnLimit)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("load history failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	userAnalysis, err := a.analysis.UserAnalysis(ctx, userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("compute user analysis failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	messageAnalysis := analyzeMessage(payload.Message)

	summary, err := a.store.ConversationSummary(ctx, userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("load conversation summary failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	prompt := buildContextualPrompt(userID, payload.Message, history, userAnalysis, summary)
	result := completeWithFallback(ctx, a.ai, prompt)
	switch result.Outcome {
	case CompletionFallbackError:
		logx.Error().Err(result.Err).Str("user_id", userID).Msg("completion call failed, using fallback reply")
	case CompletionFallbackShort:
		logx.Warn().Str("user_id", userID).Msg("completion reply too short, using fallback reply")
	}

	assistantMessage, err := a.store.SaveMessage(ctx, userID, conversation.ID, roleAssistant, result.Text)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("persist assistant message failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	responseText := result.Text
	if messageAnalysis.IsCrisis {
		logx.Warn().Str("user_id", userID).Msg("crisis detected")
		responseText += crisisNotice
	}

	c.JSON(http.StatusOK, gin.H{
		"response":      responseText,
		"response_html": htmlResponse(responseText),
		"user_id":       userID,
		"message_id":    assistantMessage.ID,
		"context_analysis": gin.H{
			"user_id":                  userID,
			"total_messages":           userAnalysis.TotalMessages,
			"sentiment_trend":          userAnalysis.Sentiment,
			"engagement_level":         userAnalysis.EngagementLevel,
			"common_topics":            userAnalysis.Topics,
			"current_message_analysis": messageAnalysis,
		},
	})
}

// htmlResponse escapes first, then converts line breaks; the text is
// rendered as HTML by callers.
func htmlResponse(text string) string {
	return strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
}

func (a *App) conversationHistory(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required")
		return
	}

	// The limit is passed through to the store unbounded; a caller asking
	// for more turns than exist simply gets them all.
	limit := defaultHistoryLimit
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := a.store.ConversationHistory(c.Request.Context(), userID, limit)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("load history failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"history": history,
	})
}

func (a *App) userAnalysis(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required")
		return
	}

	analysis, err := a.analysis.UserAnalysis(c.Request.Context(), userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("compute user analysis failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	summary, err := a.store.ConversationSummary(c.Request.Context(), userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("load conversation summary failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"analysis": analysis,
		"summary":  summary,
	})
}

func (a *App) userSummary(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required")
		return
	}

	summary, err := a.store.ConversationSummary(c.Request.Context(), userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("load conversation summary failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"summary": summary,
	})
}

func (a *App) userGreeting(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required")
		return
	}

	analysis, err := a.analysis.UserAnalysis(c.Request.Context(), userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("compute user analysis failed")
		writeError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"greeting": personalizedGreeting(analysis),
	})
}
