package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erikvandergeld/focalize/internal/task"
)

type createTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ClientID    string   `json:"client_id"`
	AssigneeID  string   `json:"assignee_id"`
	Status      string   `json:"status"`
	Type        string   `json:"type"`
	EntityID    string   `json:"entity_id"`
	ProjectID   string   `json:"project_id"`
	TagIDs      []string `json:"tag_ids"`
}

type statusRequest struct {
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
}

type updateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ClientID    string `json:"client_id"`
	AssigneeID  string `json:"assignee_id"`
	Status      string `json:"status"`
}

// handleCreateTask creates a task for the caller.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}

	id, err := s.tasks.Create(c.Request.Context(), caller(c), task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		ClientID:    req.ClientID,
		AssigneeID:  req.AssigneeID,
		Status:      req.Status,
		Type:        req.Type,
		EntityID:    req.EntityID,
		ProjectID:   req.ProjectID,
		TagIDs:      req.TagIDs,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task_id": id})
}

// handleListTasks returns the caller's visible, non-archived tasks.
func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.tasks.List(c.Request.Context(), caller(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleListArchivedTasks mirrors handleListTasks for archived tasks.
func (s *Server) handleListArchivedTasks(c *gin.Context) {
	tasks, err := s.tasks.ListArchived(c.Request.Context(), caller(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleProjectTasks derives a project's task list from the tasks table.
func (s *Server) handleProjectTasks(c *gin.Context) {
	tasks, err := s.tasks.ProjectTasks(c.Request.Context(), caller(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleUpdateTaskStatus applies a status transition.
func (s *Server) handleUpdateTaskStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}

	err := s.tasks.UpdateStatus(c.Request.Context(), caller(c), c.Param("id"), req.Status, req.CompletedAt)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, nil)
}

// handleUpdateTask overwrites the editable task fields.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}

	err := s.tasks.Update(c.Request.Context(), caller(c), c.Param("id"), task.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		ClientID:    req.ClientID,
		AssigneeID:  req.AssigneeID,
		Status:      req.Status,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, nil)
}

// handleDeleteTask removes a task and its tag associations.
func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.tasks.Delete(c.Request.Context(), caller(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, nil)
}
