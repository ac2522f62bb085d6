package admin

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/handler"
	"github.com/snowfest/platform/internal/survey"
)

// SurveyAdminHandler handles operator survey actions.
type SurveyAdminHandler struct {
	matcher *survey.Matcher
}

// NewSurveyAdminHandler creates a new SurveyAdminHandler.
func NewSurveyAdminHandler(matcher *survey.Matcher) *SurveyAdminHandler {
	return &SurveyAdminHandler{matcher: matcher}
}

type pushRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

// PushRule handles POST /admin/surveys/rules/{id}/push — runs a
// MANUAL_PUSH rule against an explicit user list.
func (h *SurveyAdminHandler) PushRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || ruleID < 1 {
		handler.RespondError(w, domain.ErrValidation("invalid rule id"))
		return
	}

	var req pushRequest
	if err := handler.DecodeJSON(r, &req); err != nil || len(req.UserIDs) == 0 {
		handler.RespondError(w, domain.ErrValidation("user_ids is required"))
		return
	}

	spawned, err := h.matcher.PushManual(r.Context(), ruleID, req.UserIDs)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]int{"spawned": spawned})
}
