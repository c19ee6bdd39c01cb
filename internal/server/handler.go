package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/xupit3r/vsmserve/internal/gate"
)

// statusClientClosedRequest is logged when the caller went away mid-request.
const statusClientClosedRequest = 499

type generateRequest struct {
	// Pointer so that "" is accepted while a missing or null prompt is not.
	Prompt *string `json:"prompt" binding:"required"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model"`
	Device     string `json:"device"`
	Queued     int    `json:"queued"`
	Processing int    `json:"processing"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.entry(c).WithError(err).Debug("Rejected generate request")
		c.JSON(http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object with a string \"prompt\" field"})
		return
	}

	text, err := s.gen.Generate(c.Request.Context(), *req.Prompt)
	if err != nil {
		status := statusFor(err)
		log := s.entry(c).WithError(err).WithField("prompt_len", len(*req.Prompt))
		switch status {
		case statusClientClosedRequest:
			log.Info("Client went away during generation")
			c.AbortWithStatus(status)
		case http.StatusServiceUnavailable:
			log.Warn("Generation queue full")
			c.Header("Retry-After", "1")
			c.JSON(status, errorResponse{Error: "server busy, try again later"})
		default:
			log.Error("Generation failed")
			c.JSON(status, errorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, generateResponse{Response: text})
}

func (s *Server) handleHealth(c *gin.Context) {
	info := s.gen.Info()
	resp := healthResponse{Status: "ok", Model: info.Model, Device: info.Device}
	if s.stats != nil {
		st := s.stats.Stats()
		resp.Queued, resp.Processing = st.Queued, st.Processing
	}
	c.JSON(http.StatusOK, resp)
}

// statusFor maps a generation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gate.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) entry(c *gin.Context) *logrus.Entry {
	return s.log.WithField("request_id", c.GetString(requestIDKey))
}
