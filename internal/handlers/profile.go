package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/repository"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/service"
)

const (
	maxPageLimit = 100
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 64 << 10
)

func (h HandlerSet) Profile(c *gin.Context) {
	user, found := h.currentUser(c)
	if !found {
		return
	}

	profile, err := h.profiles.GetProfile(c.Request.Context(), user.ID)
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, "", userEnvelope{User: profile})
}

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	user, found := h.currentUser(c)
	if !found {
		return
	}

	maxSize := h.cfg.Storage.MaxAvatarSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.render.Error(c, apperr.Validation(fmt.Sprintf("Avatar must be at most %d bytes", maxSize)))
			return
		}
		h.render.Error(c, apperr.Validation("Avatar file is required"))
		return
	}
	defer file.Close()

	profile, err := h.profiles.UploadAvatar(c.Request.Context(), service.AvatarUpload{
		User:     user,
		Body:     file,
		Declared: http.Header(header.Header),
	})
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, "Avatar updated", userEnvelope{User: profile})
}

func (h HandlerSet) Activity(c *gin.Context) {
	user, found := h.currentUser(c)
	if !found {
		return
	}

	page, err := h.profiles.ListActivity(c.Request.Context(), user.ID, pageOptions(c))
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, "", page)
}

// pageOptions reads page and limit query parameters. Bad values fall back
// to the repository defaults.
func pageOptions(c *gin.Context) repository.PageOptions {
	var opts repository.PageOptions
	if v, err := strconv.ParseInt(c.Query("page"), 10, 64); err == nil && v > 0 {
		opts.Page = v
	}
	if v, err := strconv.ParseInt(c.Query("limit"), 10, 64); err == nil && v > 0 {
		opts.Limit = min(v, maxPageLimit)
	}
	return opts
}
