package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ARIHARAN-KC/nexa/internal/analytics"
	"github.com/ARIHARAN-KC/nexa/internal/db"
	"github.com/ARIHARAN-KC/nexa/internal/orchestrator"
	"github.com/ARIHARAN-KC/nexa/internal/pipeline"
	"github.com/ARIHARAN-KC/nexa/internal/storage"
)

// ---- request bodies ----

type processRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"user_id"`
}

type downloadRequest struct {
	ProjectName string         `json:"project_name"`
	Code        []storage.File `json:"code"`
}

type fixRequest struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// userID picks the caller: the user_id query parameter, then the X-User-ID
// header, then the configured default.
func (s *Server) userID(c *gin.Context) string {
	if u := strings.TrimSpace(c.Query("user_id")); u != "" {
		return u
	}
	if u := strings.TrimSpace(c.GetHeader("X-User-ID")); u != "" {
		return u
	}
	return s.deps.DefaultUser
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidKey):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not configured"})
}

// handleProcess streams the pipeline's events as NDJSON. The stream ends
// early when the client goes away.
func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No prompt provided"})
		return
	}
	user := strings.TrimSpace(req.UserID)
	if user == "" {
		user = s.userID(c)
	}

	c.Header("Content-Type", pipeline.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	events := s.deps.Runner.Run(c.Request.Context(), orchestrator.Request{
		Prompt: req.Prompt,
		UserID: user,
		RunID:  c.GetString("request_id"),
	})
	n, err := pipeline.NewEncoder(c.Writer).Stream(events)
	if err != nil {
		s.logger.Warn("event stream ended early", zap.Int("written", n), zap.Error(err))
	}
}

func (s *Server) handleListHistory(c *gin.Context) {
	convs, err := s.deps.History.ListConversations(c.Request.Context(), s.userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	if convs == nil {
		convs = []db.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetHistory(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, err := s.deps.History.GetConversation(c.Request.Context(), s.userID(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	if err := s.deps.History.DeleteConversation(c.Request.Context(), s.userID(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted", "id": id})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	n, err := s.deps.History.ClearConversations(c.Request.Context(), s.userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "History cleared", "deleted": n})
}

// handleDownload packs the posted files into a zip attachment.
func (s *Server) handleDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Code) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No code provided"})
		return
	}

	var buf bytes.Buffer
	n, err := storage.WriteZip(&buf, req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	if n == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid files to download"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.ArchiveName(req.ProjectName)))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (s *Server) handleFix(c *gin.Context) {
	if s.deps.Fixer == nil {
		unavailable(c, "bug fixer")
		return
	}
	var req fixRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Error) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Both code and error are required"})
		return
	}
	fix, err := s.deps.Fixer.Fix(c.Request.Context(), req.Code, req.Error)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fix)
}

func (s *Server) handleAnalytics(c *gin.Context) {
	if s.deps.Analytics == nil {
		unavailable(c, "analytics")
		return
	}
	report, err := analytics.BuildReport(c.Request.Context(), s.deps.Analytics, c.Query("since"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ---- project files ----

func (s *Server) handleListFiles(c *gin.Context) {
	if s.deps.Objects == nil {
		unavailable(c, "object storage")
		return
	}
	files, err := storage.ListProjectFiles(c.Request.Context(), s.deps.Objects, c.Param("user"), c.Param("project"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(files) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func filePath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("path"), "/")
}

func (s *Server) handleGetFile(c *gin.Context) {
	if s.deps.Objects == nil {
		unavailable(c, "object storage")
		return
	}
	path := filePath(c)
	data, err := storage.GetProjectFile(c.Request.Context(), s.deps.Objects, c.Param("user"), c.Param("project"), path)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": path, "content": string(data)})
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	if s.deps.Objects == nil {
		unavailable(c, "object storage")
		return
	}
	path := filePath(c)
	if err := storage.DeleteProjectFile(c.Request.Context(), s.deps.Objects, c.Param("user"), c.Param("project"), path); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted", "file": path})
}
