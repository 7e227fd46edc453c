package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/constants"
	"cdr-graph/backend/internal/session"
	"cdr-graph/backend/internal/tabular"
	apperrors "cdr-graph/backend/pkg/errors"
)

func (s *server) check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": "working"})
}

func (s *server) health(c *gin.Context) {
	if s.Graph == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := s.Graph.Ping(ctx); err != nil {
		s.Logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "neo4j": "disconnected", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "neo4j": "connected"})
}

func (s *server) graphStats(c *gin.Context) {
	if s.Graph == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Graph store not configured"})
		return
	}
	ctx := c.Request.Context()
	nodes, err := s.Graph.CountNodes(ctx)
	if err != nil {
		s.Logger.Error("Failed to count nodes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count nodes"})
		return
	}
	rels, err := s.Graph.CountRelationships(ctx)
	if err != nil {
		s.Logger.Error("Failed to count relationships", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count relationships"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "relationships": rels})
}

// parseData ingests one uploaded CSV or Excel file into the graph.
func (s *server) parseData(c *gin.Context) {
	sessionID := s.Sessions.GetOrCreate(c.GetHeader(constants.SessionHeader))
	c.Header(constants.SessionHeader, sessionID)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxUploadBytes)
	header, err := c.FormFile(constants.UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", s.MaxUploadBytes), "session_id": sessionID})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file part in the request", "session_id": sessionID})
		return
	}
	if header.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file", "session_id": sessionID})
		return
	}
	if !tabular.Supported(header.Filename) {
		s.fail(c, sessionID, header.Filename, http.StatusBadRequest, tabular.UnsupportedError(header.Filename))
		return
	}

	file, err := header.Open()
	if err != nil {
		s.fail(c, sessionID, header.Filename, http.StatusInternalServerError, err)
		return
	}
	defer file.Close()

	table, err := tabular.Read(header.Filename, file)
	if err != nil {
		s.fail(c, sessionID, header.Filename, http.StatusBadRequest, err)
		return
	}

	result, err := s.Ingest.Ingest(c.Request.Context(), table)
	if err != nil {
		var unknown *apperrors.ErrUnrecognizedFileType
		if errors.As(err, &unknown) {
			s.Sessions.AddError(sessionID, header.Filename, fmt.Sprintf("Unknown file type. Detected columns: %v", unknown.Columns))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown file type", "detected_columns": unknown.Columns, "session_id": sessionID})
			return
		}
		s.fail(c, sessionID, header.Filename, http.StatusInternalServerError, err)
		return
	}

	fileType := result.FileType.String()
	if err := s.Sessions.AddFile(sessionID, session.FileInfo{
		Filename:    header.Filename,
		FileType:    fileType,
		RecordCount: result.RecordCount,
		Columns:     result.Columns,
		Status:      session.StatusSuccess,
	}); err != nil {
		s.Logger.Warn("Failed to record upload", zap.String("session_id", sessionID), zap.Error(err))
	}
	stats, _ := s.Sessions.Stats(sessionID)
	processing := map[string]any{
		"last_file_type":    fileType,
		"last_record_count": result.RecordCount,
	}
	if stats != nil {
		processing["total_files_processed"] = stats.FilesProcessed
	}
	s.Sessions.UpdateProcessingContext(sessionID, processing)
	if s.Metrics != nil {
		s.Metrics.SetActiveSessions(s.Sessions.Len())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"file_type":      fileType,
		"session_id":     sessionID,
		"record_count":   result.RecordCount,
		"columns":        result.Columns,
		"nodes":          result.NodeCount,
		"relationships":  result.EdgeCount,
		"warnings":       result.Warnings,
		"ai_explanation": s.explainUpload(c.Request.Context(), sessionID, fileType, result.Columns),
	})
}

// explainUpload asks the assistant about a freshly detected file. Failures
// are reported in the text rather than failing the upload.
func (s *server) explainUpload(ctx context.Context, sessionID, fileType string, columns []string) string {
	if s.AI == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.AITimeout)
	defer cancel()
	explanation, err := s.AI.ExplainFileType(ctx, fileType, columns)
	if err != nil {
		s.Logger.Warn("AI explanation failed", zap.String("file_type", fileType), zap.Error(err))
		return "AI explanation unavailable: " + err.Error()
	}
	s.Sessions.AppendExchange(sessionID, "Explain "+fileType+" file type", explanation)
	return explanation
}

func (s *server) fail(c *gin.Context, sessionID, filename string, status int, err error) {
	s.Sessions.AddError(sessionID, filename, err.Error())
	if status >= http.StatusInternalServerError {
		s.Logger.Error("Upload failed",
			zap.String("session_id", sessionID),
			zap.String("file", filename),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{
		"error":      err.Error(),
		"session_id": sessionID,
		"retryable":  apperrors.IsRetryable(err),
	})
}
