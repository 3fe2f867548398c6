package scheduler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/horecafocus/backoffice_backend/utils"
)

type runNowRequest struct {
	Start        string   `json:"start"`
	End          string   `json:"end"`
	LocationRefs []string `json:"locationRefs"`
}

// RunNowHandler triggers one job synchronously and returns its result.
// A concurrent duplicate gets 409, a stopped job 423.
func RunNowHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobType := JobType(strings.TrimSpace(c.Param("jobType")))

		var req runNowRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}

		params := RunParams{LocationRefs: req.LocationRefs}
		if req.Start != "" {
			start, err := utils.ParseDate(req.Start)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
				return
			}
			params.Start = start
		}
		if req.End != "" {
			end, err := utils.ParseDate(req.End)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
				return
			}
			params.End = end
		}

		result, err := s.RunNow(c.Request.Context(), jobType, params)
		if err != nil {
			switch {
			case errors.Is(err, ErrUnknownJob):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, ErrAlreadyRunning):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, ErrJobStopped):
				c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func StartHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobType := JobType(strings.TrimSpace(c.Param("jobType")))
		if err := s.Start(jobType); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func StopHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobType := JobType(strings.TrimSpace(c.Param("jobType")))
		if err := s.Stop(jobType); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func StatusHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jobs": s.Status()})
	}
}
