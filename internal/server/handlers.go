package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wpsteward/steward/internal/service"
	"github.com/wpsteward/steward/internal/service/reminder"
	"github.com/wpsteward/steward/internal/service/wordpress"
)

// detached keeps request values but ignores client disconnects, so a sync
// or reminder run always finishes once started.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleProbe(c *gin.Context) {
	opts := wordpress.Options{APIURL: c.Query("apiUrl")}
	if perPage, err := strconv.Atoi(c.Query("perPage")); err == nil {
		opts.PerPage = perPage
	}

	probe, err := s.WordPress.Probe(c.Request.Context(), opts)
	if err != nil {
		s.respondError(c, err, "Failed to reach WordPress API")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"apiUrl":     probe.APIURL,
		"perPage":    probe.PerPage,
		"totalPages": probe.TotalPages,
		"totalPosts": probe.TotalPosts,
	})
}

func (s *Server) handleSyncPage(c *gin.Context) {
	var opts wordpress.Options
	if err := bindOptional(c, &opts); err != nil {
		badRequest(c, "Invalid sync options")
		return
	}

	result, err := s.WordPress.SyncPage(detached(c), opts)
	if err != nil {
		s.respondError(c, err, "Failed to sync WordPress posts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Summary(),
		"results": result,
	})
}

func (s *Server) handleSyncAll(c *gin.Context) {
	var opts wordpress.Options
	if err := bindOptional(c, &opts); err != nil {
		badRequest(c, "Invalid sync options")
		return
	}
	// all-pages mode always starts from page 1
	opts.Page = 0

	result, err := s.WordPress.SyncAll(detached(c), opts)
	if err != nil {
		s.respondError(c, err, "Failed to sync all WordPress posts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Summary(),
		"results": result,
	})
}

func (s *Server) handleImport(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "Failed to read request body")
		return
	}

	var posts []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &posts); err != nil || posts == nil {
		badRequest(c, "Invalid JSON data. Expected an array of posts.")
		return
	}

	result := s.WordPress.Import(detached(c), posts)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Summary(),
		"results": result,
	})
}

func (s *Server) handleListPosts(c *gin.Context) {
	q := service.ListQuery{
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", 10),
		Search: c.Query("search"),
		Sort:   c.DefaultQuery("sort", "desc"),
	}

	list, err := s.Posts.List(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, err, "Failed to fetch posts")
		return
	}

	c.JSON(http.StatusOK, list)
}

type saveEmailRequest struct {
	PostID uint   `json:"postId"`
	Email  string `json:"email"`
}

func (s *Server) handleSaveEmail(c *gin.Context) {
	var req saveEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := s.Posts.SaveEmail(c.Request.Context(), req.PostID, req.Email); err != nil {
		s.respondError(c, err, "Failed to save email")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email saved successfully",
	})
}

func (s *Server) handleDeleteAll(c *gin.Context) {
	count, err := s.Posts.DeleteAll(detached(c))
	if err != nil {
		s.respondError(c, err, "Failed to delete all posts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   count,
		"message": fmt.Sprintf("Deleted all %d posts", count),
	})
}

type deleteSelectedRequest struct {
	IDs []uint `json:"ids"`
}

func (s *Server) handleDeleteSelected(c *gin.Context) {
	var req deleteSelectedRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	count, err := s.Posts.DeleteSelected(detached(c), req.IDs)
	if err != nil {
		s.respondError(c, err, "Failed to delete selected posts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   count,
		"message": fmt.Sprintf("Deleted %d posts", count),
	})
}

func (s *Server) handleExportPosts(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.Posts.ExportCSV(c.Request.Context(), &buf); err != nil {
		s.respondError(c, err, "Failed to export posts")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="wordpress_posts.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) handleSendReminders(c *gin.Context) {
	results, err := s.Reminders.Run(detached(c))
	if err != nil {
		s.respondError(c, err, "Failed to send reminder emails")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": reminder.Summary(results),
		"results": results,
	})
}

type sendTestRequest struct {
	PostID uint `json:"postId" binding:"required"`
}

func (s *Server) handleSendTest(c *gin.Context) {
	var req sendTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Post ID is required")
		return
	}

	messageID, err := s.Reminders.SendTest(detached(c), req.PostID)
	if err != nil {
		s.respondError(c, err, "Failed to send test email")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messageId": messageID,
	})
}

type sendTestGroupedRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (s *Server) handleSendTestGrouped(c *gin.Context) {
	var req sendTestGroupedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "A valid email is required")
		return
	}

	messageID, count, err := s.Reminders.SendTestGrouped(detached(c), req.Email)
	if err != nil {
		s.respondError(c, err, "Failed to send test email")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messageId": messageID,
		"message":   fmt.Sprintf("Test email with %d posts sent to %s", count, req.Email),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs, err := s.History.RecentRuns(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		s.respondError(c, err, "Failed to load run history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Token is required")
		return
	}

	if !s.Auth.ValidateToken(req.Token) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid token"})
		return
	}

	token, _ := s.Auth.CreateSession()
	secure := s.Config.Server.CertFile != ""
	c.SetCookie(service.SessionCookie, token, int(s.Auth.SessionTTL().Seconds()), "/", "", secure, true)
	s.Logger.Info("Dashboard login", zap.String("client_ip", c.ClientIP()))

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleLogout(c *gin.Context) {
	if token, err := c.Cookie(service.SessionCookie); err == nil {
		s.Auth.RevokeSession(token)
	}
	c.SetCookie(service.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
