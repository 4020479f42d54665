package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/attach"
	"github.com/erikvandergeld/focalize/internal/auth"
	"github.com/erikvandergeld/focalize/internal/comment"
	"github.com/erikvandergeld/focalize/internal/notify"
	"github.com/erikvandergeld/focalize/internal/storage/sqlite"
	"github.com/erikvandergeld/focalize/internal/task"
)

const principalKey = "focalize.principal"

// Server provides the HTTP binding for the task tracker core.
type Server struct {
	engine      *gin.Engine
	store       *sqlite.Store
	tasks       *task.Engine
	comments    *comment.Processor
	ledger      *notify.Ledger
	attachments attach.Store
	identity    auth.Source
	directory   auth.Directory
	logger      *slog.Logger
}

// Config wires the core components into the server.
type Config struct {
	Store       *sqlite.Store
	Tasks       *task.Engine
	Comments    *comment.Processor
	Ledger      *notify.Ledger
	Attachments attach.Store
	Identity    auth.Source
	Directory   auth.Directory
	Logger      *slog.Logger

	// FilesDir, when non-empty, is mounted read-only under /files for
	// attachment retrieval.
	FilesDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api"))

	srv := &Server{
		engine:      router,
		store:       cfg.Store,
		tasks:       cfg.Tasks,
		comments:    cfg.Comments,
		ledger:      cfg.Ledger,
		attachments: cfg.Attachments,
		identity:    cfg.Identity,
		directory:   cfg.Directory,
		logger:      logger,
	}

	srv.registerRoutes(cfg.FilesDir)
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and file handlers together.
func (s *Server) registerRoutes(filesDir string) {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		authed := api.Group("", s.authenticate)
		{
			authed.GET("/entities", s.handleListEntities)
			authed.POST("/entities", s.handleCreateEntity)
			authed.GET("/clients", s.handleListClients)
			authed.POST("/clients", s.handleCreateClient)
			authed.GET("/tags", s.handleListTags)
			authed.POST("/tags", s.handleCreateTag)

			projects := authed.Group("/projects")
			{
				projects.GET("", s.handleListProjects)
				projects.POST("", s.handleCreateProject)
				projects.GET(":id/tasks", s.handleProjectTasks)
			}

			tasks := authed.Group("/tasks")
			{
				tasks.GET("", s.handleListTasks)
				tasks.POST("", s.handleCreateTask)
				tasks.GET("/archived", s.handleListArchivedTasks)
				tasks.PATCH(":id/status", s.handleUpdateTaskStatus)
				tasks.PUT(":id", s.handleUpdateTask)
				tasks.DELETE(":id", s.handleDeleteTask)
				tasks.GET(":id/comments", s.handleListComments)
				tasks.POST(":id/comments", s.handleAddComment)
				tasks.POST(":id/attachments", s.handleUploadAttachment)
			}

			notifications := authed.Group("/notifications")
			{
				notifications.GET("", s.handleListNotifications)
				notifications.POST(":id/read", s.handleMarkNotificationRead)
				notifications.POST("/read-all", s.handleMarkAllNotificationsRead)
			}
		}
	}

	s.mountFiles(filesDir)
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authenticate resolves the bearer credential to a principal and stores it
// on the request context.
func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		s.respondError(c, auth.ErrUnauthenticated)
		c.Abort()
		return
	}

	principal, err := s.identity.Resolve(c.Request.Context(), token)
	if err != nil {
		s.respondError(c, err)
		c.Abort()
		return
	}

	c.Set(principalKey, principal)
	c.Next()
}

// caller returns the principal the middleware resolved for this request.
func caller(c *gin.Context) auth.Principal {
	return c.MustGet(principalKey).(auth.Principal)
}

// respondError maps the application error taxonomy to HTTP statuses.
// Internal failures are logged with full context and surfaced generically.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch apperr.KindOf(err) {
	case apperr.Unauthenticated:
		status = http.StatusUnauthorized
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.InvalidInput:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	default:
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("method", c.Request.Method),
			slog.String("error", err.Error()))
		message = "internal error"
	}

	c.JSON(status, gin.H{"success": false, "message": message})
}

// respondSuccess wraps a payload in the success envelope.
func respondSuccess(c *gin.Context, status int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

func invalidBody(err error) error {
	if err == nil {
		err = errors.New("invalid request body")
	}
	return apperr.Wrap(apperr.InvalidInput, err, "invalid request body")
}
