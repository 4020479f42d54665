package server

import (
	"os"

	"github.com/gin-gonic/gin"
)

// mountFiles serves stored attachment blobs from the configured directory.
func (s *Server) mountFiles(filesDir string) {
	if filesDir == "" {
		s.logger.Warn("attachment directory not configured; uploads disabled for retrieval")
		return
	}

	info, err := os.Stat(filesDir)
	if err != nil {
		s.logger.Warn("attachment directory missing", "path", filesDir, "error", err)
		return
	}
	if !info.IsDir() {
		s.logger.Warn("attachment path is not a directory", "path", filesDir)
		return
	}

	s.engine.StaticFS("/files", gin.Dir(filesDir, false))
}
