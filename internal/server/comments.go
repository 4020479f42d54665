package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erikvandergeld/focalize/internal/comment"
	"github.com/erikvandergeld/focalize/internal/models"
)

type commentRequest struct {
	Text string `json:"text"`
}

// handleAddComment appends a comment to a task. Mention extraction happens
// here, at the transport layer: @-tokens in the text are resolved against
// the principal directory, the author is excluded, and the resulting ids are
// handed to the processor for fan-out.
func (s *Server) handleAddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidBody(err))
		return
	}

	author := caller(c)
	principals, err := s.directory.Principals(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	mentions := comment.ExtractMentions(req.Text, author.ID, principals)

	created, err := s.comments.AddComment(c.Request.Context(), c.Param("id"), author.ID, req.Text, mentions)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"comment": created})
}

// handleListComments returns a task's comments, newest first.
func (s *Server) handleListComments(c *gin.Context) {
	comments, err := s.comments.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"comments": comments})
}

// handleUploadAttachment stores the uploaded blob in the attachment store
// and persists the (task, filename, url) triple.
func (s *Server) handleUploadAttachment(c *gin.Context) {
	taskID := c.Param("id")
	if _, err := s.store.GetTask(c.Request.Context(), taskID); err != nil {
		s.respondError(c, err)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, invalidBody(err))
		return
	}

	src, err := file.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer src.Close()

	url, err := s.attachments.Save(c.Request.Context(), taskID, file.Filename, src)
	if err != nil {
		s.respondError(c, err)
		return
	}

	a := models.Attachment{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Filename: file.Filename,
		URL:      url,
	}
	if err := s.store.InsertAttachment(c.Request.Context(), a); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"attachment": a})
}
