package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erikvandergeld/focalize/internal/apperr"
	"github.com/erikvandergeld/focalize/internal/models"
)

type entityRequest struct {
	Name string `json:"name"`
}

type clientRequest struct {
	Name     string   `json:"name"`
	Entities []string `json:"entities"`
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ClientID    string `json:"client_id"`
	EntityID    string `json:"entity_id"`
}

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// handleListEntities returns all known entities.
func (s *Server) handleListEntities(c *gin.Context) {
	entities, err := s.store.ListEntities(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"entities": entities})
}

// handleCreateEntity registers a new organizational entity.
func (s *Server) handleCreateEntity(c *gin.Context) {
	var req entityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(c, apperr.New(apperr.InvalidInput, "entity name is required"))
		return
	}

	e := models.Entity{ID: uuid.NewString(), Name: strings.TrimSpace(req.Name), CreatedAt: time.Now().UTC()}
	if err := s.store.InsertEntity(c.Request.Context(), e); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"entity": e})
}

// handleListClients returns clients visible to the caller's entities.
func (s *Server) handleListClients(c *gin.Context) {
	clients, err := s.store.ListClients(c.Request.Context(), caller(c).Entities)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"clients": clients})
}

// handleCreateClient registers a client under one or more of the caller's
// entities.
func (s *Server) handleCreateClient(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(c, apperr.New(apperr.InvalidInput, "client name is required"))
		return
	}
	if len(req.Entities) == 0 {
		s.respondError(c, apperr.New(apperr.InvalidInput, "at least one entity is required"))
		return
	}
	for _, entityID := range req.Entities {
		if !caller(c).MemberOf(entityID) {
			s.respondError(c, apperr.New(apperr.Forbidden, "not a member of entity %q", entityID))
			return
		}
	}

	client := models.Client{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Entities:  req.Entities,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertClient(c.Request.Context(), client); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"client": client})
}

// handleListProjects returns projects scoped to the caller's entities.
func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context(), caller(c).Entities)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": projects})
}

// handleCreateProject registers a project under one of the caller's
// entities.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	switch {
	case strings.TrimSpace(req.Name) == "":
		s.respondError(c, apperr.New(apperr.InvalidInput, "project name is required"))
		return
	case req.ClientID == "":
		s.respondError(c, apperr.New(apperr.InvalidInput, "client is required"))
		return
	case req.EntityID == "":
		s.respondError(c, apperr.New(apperr.InvalidInput, "entity is required"))
		return
	}
	if !caller(c).MemberOf(req.EntityID) {
		s.respondError(c, apperr.New(apperr.Forbidden, "not a member of entity %q", req.EntityID))
		return
	}

	p := models.Project{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		ClientID:      req.ClientID,
		EntityID:      req.EntityID,
		Status:        "active",
		ActiveTasks:   []string{},
		CompleteTasks: []string{},
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.InsertProject(c.Request.Context(), p); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": p})
}

// handleListTags returns all tags.
func (s *Server) handleListTags(c *gin.Context) {
	tags, err := s.store.ListTags(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tags": tags})
}

// handleCreateTag registers a tag.
func (s *Server) handleCreateTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(c, apperr.New(apperr.InvalidInput, "tag name is required"))
		return
	}
	if req.Color == "" {
		req.Color = "#2563eb"
	}

	t := models.Tag{ID: uuid.NewString(), Name: strings.TrimSpace(req.Name), Color: req.Color}
	if err := s.store.InsertTag(c.Request.Context(), t); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"tag": t})
}
