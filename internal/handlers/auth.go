package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/response"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/service"
)

type registerRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,max=72"`
	FirstName   string `json:"firstName" binding:"required,max=100"`
	LastName    string `json:"lastName" binding:"required,max=100"`
	Role        string `json:"role" binding:"required,role"`
	DateOfBirth string `json:"dateOfBirth"`
	ParentEmail string `json:"parentEmail" binding:"omitempty,email"`
}

type userEnvelope struct {
	User models.PublicUser `json:"user"`
}

type loginResponse struct {
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	dob, err := parseBirthDate(req.DateOfBirth)
	if err != nil {
		h.render.Error(c, err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Role:        models.UserRole(req.Role),
		DateOfBirth: dob,
		ParentEmail: req.ParentEmail,
		Meta:        requestMeta(c),
	})
	if err != nil {
		h.render.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, result.Message, userEnvelope{User: result.User})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     requestMeta(c),
	})
	if err != nil {
		h.render.Error(c, err)
		return
	}

	ok(c, service.MsgLoginSuccess, loginResponse{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if !h.bindJSON(c, &req) {
		return
	}

	pair, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken, requestMeta(c))
	if err != nil {
		h.render.Error(c, err)
		return
	}

	ok(c, service.MsgTokenRefreshed, pair)
}

func (h HandlerSet) Logout(c *gin.Context) {
	user, found := h.currentUser(c)
	if !found {
		return
	}
	ok(c, h.auth.Logout(c.Request.Context(), user, requestMeta(c)), nil)
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	msg, err := h.auth.VerifyEmail(c.Request.Context(), c.Query("token"), requestMeta(c))
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, msg, nil)
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h HandlerSet) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !h.bindJSON(c, &req) {
		return
	}

	msg, err := h.auth.ResendVerificationEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, msg, nil)
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !h.bindJSON(c, &req) {
		return
	}

	msg, err := h.auth.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, msg, nil)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword leaves empty fields to the service so its messages reach
// the client unchanged.
func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	msg, err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password, requestMeta(c))
	if err != nil {
		h.render.Error(c, err)
		return
	}
	ok(c, msg, nil)
}
