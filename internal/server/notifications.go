package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleListNotifications returns the caller's unread notifications, newest
// first.
func (s *Server) handleListNotifications(c *gin.Context) {
	notifications, err := s.ledger.List(c.Request.Context(), caller(c).ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"notifications": notifications})
}

// handleMarkNotificationRead marks one notification read for the caller.
func (s *Server) handleMarkNotificationRead(c *gin.Context) {
	if err := s.ledger.MarkRead(c.Request.Context(), caller(c).ID, c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, nil)
}

// handleMarkAllNotificationsRead marks every notification of the caller read
// and seen.
func (s *Server) handleMarkAllNotificationsRead(c *gin.Context) {
	if err := s.ledger.MarkAllRead(c.Request.Context(), caller(c).ID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, nil)
}
