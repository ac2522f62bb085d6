package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/survey"
)

// SurveyHandler handles player-facing survey endpoints.
type SurveyHandler struct {
	service *survey.Service
}

// NewSurveyHandler creates a new SurveyHandler.
func NewSurveyHandler(service *survey.Service) *SurveyHandler {
	return &SurveyHandler{service: service}
}

// ListActive handles GET /surveys — surveys the caller can take now.
func (h *SurveyHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	surveys, err := h.service.ListActive(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, surveys)
}

// GetSession handles GET /surveys/{id}/session — opens or resumes a session.
func (h *SurveyHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	surveyID, err := int64Param(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.service.GetSession(r.Context(), userID, surveyID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, session)
}

type saveAnswersRequest struct {
	Answers []survey.AnswerInput `json:"answers"`
}

// SaveAnswers handles PUT /surveys/responses/{id}/answers.
func (h *SurveyHandler) SaveAnswers(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	responseID, err := int64Param(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	var req saveAnswersRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	if err := h.service.SaveAnswers(r.Context(), userID, responseID, req.Answers); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int{"saved": len(req.Answers)})
}

type completeRequest struct {
	ForceSubmit bool `json:"force_submit"`
}

// Complete handles POST /surveys/responses/{id}/complete.
func (h *SurveyHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	responseID, err := int64Param(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	var req completeRequest
	_ = DecodeJSON(r, &req) // body is optional

	result, err := h.service.Complete(r.Context(), userID, responseID, req.ForceSubmit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v < 1 {
		return 0, domain.ErrValidation("invalid " + name)
	}
	return v, nil
}
