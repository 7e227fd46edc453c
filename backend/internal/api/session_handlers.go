package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/adapter"
	"cdr-graph/backend/internal/constants"
	"cdr-graph/backend/internal/session"
	apperrors "cdr-graph/backend/pkg/errors"
)

func (s *server) history(c *gin.Context) {
	history, err := s.Sessions.History(c.GetString(sessionKey))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *server) stats(c *gin.Context) {
	stats, err := s.Sessions.Stats(c.GetString(sessionKey))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// memory creates the session on first use, so a client can open a
// conversation before uploading.
func (s *server) memory(c *gin.Context) {
	id := s.Sessions.GetOrCreate(c.GetString(sessionKey))
	mem, err := s.Sessions.Memory(id)
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, mem)
}

func (s *server) cleanup(c *gin.Context) {
	maxAge := s.SessionMaxAge
	var req struct {
		MaxAgeHours *float64 `json:"max_age_hours"`
	}
	if c.Request.ContentLength != 0 && strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.MaxAgeHours != nil {
			if *req.MaxAgeHours < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "max_age_hours cannot be negative"})
				return
			}
			if *req.MaxAgeHours > constants.MaxCleanupAgeHours {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("max_age_hours cannot exceed %d", constants.MaxCleanupAgeHours)})
				return
			}
			maxAge = time.Duration(*req.MaxAgeHours * float64(time.Hour))
		}
	}

	cleaned := s.Sessions.Cleanup(maxAge)
	if s.Metrics != nil {
		s.Metrics.SetActiveSessions(s.Sessions.Len())
	}
	c.JSON(http.StatusOK, gin.H{"cleaned_sessions": cleaned})
}

func (s *server) analysis(c *gin.Context) {
	id, sc, ok := s.sessionContext(c)
	if !ok {
		return
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()

	analysis, err := s.AI.AnalyzeSession(ctx, sc)
	if err != nil {
		s.aiFailed(c, err)
		return
	}
	s.Sessions.AppendExchange(id, constants.AnalysisQuestion, analysis)
	c.JSON(http.StatusOK, gin.H{"analysis": analysis, "timestamp": time.Now().UTC()})
}

func (s *server) ask(c *gin.Context) {
	var req struct {
		Question string `json:"question" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}
	answer, ok := s.answer(c, req.Question)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"question": req.Question, "answer": answer, "timestamp": time.Now().UTC()})
}

func (s *server) chat(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}
	answer, ok := s.answer(c, req.Message)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": req.Message, "response": answer, "timestamp": time.Now().UTC()})
}

func (s *server) answer(c *gin.Context, question string) (string, bool) {
	id, sc, ok := s.sessionContext(c)
	if !ok {
		return "", false
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()

	answer, err := s.AI.Answer(ctx, question, sc)
	if err != nil {
		s.aiFailed(c, err)
		return "", false
	}
	s.Sessions.AppendExchange(id, question, answer)
	return answer, true
}

func (s *server) suggestions(c *gin.Context) {
	id, sc, ok := s.sessionContext(c)
	if !ok {
		return
	}
	ctx, cancel := s.aiContext(c)
	defer cancel()

	suggestions, err := s.AI.Suggest(ctx, sc)
	if err != nil {
		s.aiFailed(c, err)
		return
	}
	var text strings.Builder
	text.WriteString("Here are my suggestions:")
	for _, item := range suggestions {
		text.WriteString("\n• " + item)
	}
	s.Sessions.AppendExchange(id, constants.SuggestionsQuestion, text.String())
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions, "timestamp": time.Now().UTC()})
}

func (s *server) explain(c *gin.Context) {
	id := c.GetString(sessionKey)
	if !s.Sessions.Exists(id) {
		notFound(c)
		return
	}
	fileType := strings.ToUpper(c.Param("file_type"))
	columns := c.QueryArray("columns")

	ctx, cancel := s.aiContext(c)
	defer cancel()
	explanation, err := s.AI.ExplainFileType(ctx, fileType, columns)
	if err != nil {
		s.aiFailed(c, err)
		return
	}
	s.Sessions.AppendExchange(id, "Explain "+fileType+" file type", explanation)
	c.JSON(http.StatusOK, gin.H{"file_type": fileType, "explanation": explanation, "timestamp": time.Now().UTC()})
}

// sessionContext loads what the assistant should know about the session.
func (s *server) sessionContext(c *gin.Context) (string, adapter.SessionContext, bool) {
	id := c.GetString(sessionKey)
	history, err := s.Sessions.History(id)
	if err != nil {
		notFound(c)
		return "", adapter.SessionContext{}, false
	}
	stats, err := s.Sessions.Stats(id)
	if err != nil {
		notFound(c)
		return "", adapter.SessionContext{}, false
	}

	recent := history.Conversation
	if len(recent) > session.RecentMessages {
		recent = recent[len(recent)-session.RecentMessages:]
	}
	turns := make([]adapter.Turn, 0, len(recent))
	for _, m := range recent {
		turns = append(turns, adapter.Turn{Role: m.Role, Content: m.Content})
	}
	return id, adapter.SessionContext{
		FilesProcessed: stats.FilesProcessed,
		FileTypes:      stats.FileTypes,
		TotalRecords:   stats.TotalRecords,
		Processing:     history.ProcessingContext,
		Recent:         turns,
	}, true
}

func (s *server) aiContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.AITimeout)
}

func (s *server) aiFailed(c *gin.Context, err error) {
	s.Logger.Error("AI request failed", zap.Error(err))
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error(), "retryable": apperrors.IsRetryable(err)})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
}
