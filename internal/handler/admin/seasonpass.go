package admin

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/handler"
	"github.com/snowfest/platform/internal/seasonpass"
)

// SeasonPassAdminHandler handles operator season-pass repairs.
type SeasonPassAdminHandler struct {
	engine *seasonpass.Engine
}

// NewSeasonPassAdminHandler creates a new SeasonPassAdminHandler.
func NewSeasonPassAdminHandler(engine *seasonpass.Engine) *SeasonPassAdminHandler {
	return &SeasonPassAdminHandler{engine: engine}
}

type backfillRequest struct {
	SeasonID *int    `json:"season_id,omitempty"`
	UserID   *string `json:"user_id,omitempty"`
	DryRun   bool    `json:"dry_run"`
}

// Backfill handles POST /admin/season-pass/backfill — grants reached but
// undelivered auto-claim rewards.
func (h *SeasonPassAdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	opts := seasonpass.BackfillOptions{SeasonID: req.SeasonID, DryRun: req.DryRun}
	if req.UserID != nil {
		id, err := uuid.Parse(*req.UserID)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("invalid user_id"))
			return
		}
		opts.UserID = &id
	}

	report, err := h.engine.Backfill(r.Context(), opts)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, report)
}
