// Package response renders the JSON envelopes shared by handlers and
// middleware.
package response

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
)

type Body struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Stack   string `json:"stack,omitempty"`
}

func JSON(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Body{Success: true, Message: message, Data: data})
}

// Renderer turns errors into error envelopes. Internal failures are logged
// with request context; the client only sees the generic message, plus the
// cause's stack when stacks are enabled.
type Renderer struct {
	log        zerolog.Logger
	withStacks bool
}

func NewRenderer(log zerolog.Logger, withStacks bool) Renderer {
	return Renderer{log: log, withStacks: withStacks}
}

func (r Renderer) Error(c *gin.Context, err error) {
	appErr := apperr.From(err)

	if appErr.Kind == apperr.KindInternal {
		r.log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Msg("request failed")
	}

	body := ErrorBody{Error: appErr.Message}
	if r.withStacks && appErr.Err != nil {
		body.Stack = fmt.Sprintf("%+v", appErr.Err)
	}
	c.AbortWithStatusJSON(appErr.Status(), body)
}
