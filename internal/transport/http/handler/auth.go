package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"homecare-ai/internal/app"
	"homecare-ai/internal/transport/http/middleware"
	"homecare-ai/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

func NewAuthHandler(authService *app.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	response.OK(c, gin.H{
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user": gin.H{
			"username": result.Username,
		},
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	tokenID := c.GetString(middleware.ContextTokenIDKey)
	if err := h.authService.Logout(c.Request.Context(), tokenID); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "logout failed")
		return
	}
	response.OK(c, nil)
}

func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in session")
		return
	}
	response.OK(c, gin.H{
		"username": session.Username,
	})
}
