package handler

import (
	"net/http"

	"notes-server/internal/domain"
	"notes-server/internal/middleware"
	"notes-server/internal/service"
	"notes-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type NoteHandler struct {
	noteService *service.NoteService
	validator   *validator.Validate
	logger      *zap.Logger
}

func NewNoteHandler(noteService *service.NoteService, v *validator.Validate, logger *zap.Logger) *NoteHandler {
	return &NoteHandler{
		noteService: noteService,
		validator:   v,
		logger:      logger,
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	note, err := h.noteService.Create(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.noteService.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, err := h.noteService.Get(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	// Field checks happen in the service, after the permission check.
	var req domain.UpdateNoteRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	note, err := h.noteService.Update(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.noteService.Delete(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Message(w, http.StatusOK, "Note deleted successfully.")
}

func (h *NoteHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req domain.ShareNoteRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if _, err := h.noteService.Share(r.Context(), middleware.GetUserID(r), &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Message(w, http.StatusOK, "Note shared successfully.")
}

func (h *NoteHandler) History(w http.ResponseWriter, r *http.Request) {
	versions, err := h.noteService.History(r.Context(), middleware.GetUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, versions)
}
