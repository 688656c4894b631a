package handler

import (
	"net/http"

	"notes-server/internal/middleware"
	"notes-server/internal/service"
	"notes-server/pkg/response"

	"go.uber.org/zap"
)

type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByID(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, user)
}
