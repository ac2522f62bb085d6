// Package survey implements the player-facing survey session flow, the
// survey reward adapter, and the trigger matcher that spawns pending
// responses from gameplay events.
package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/infra"
	"github.com/snowfest/platform/internal/repository"
)

// Service drives player survey sessions: listing, answering, completion.
type Service struct {
	pool      repository.DB
	surveys   repository.SurveyRepository
	responses repository.SurveyResponseRepository
	outbox    repository.OutboxRepository
	rewards   *RewardAdapter
	clock     *infra.EventClock
	logger    *slog.Logger
}

// NewService creates a survey service.
func NewService(
	pool repository.DB,
	surveys repository.SurveyRepository,
	responses repository.SurveyResponseRepository,
	outbox repository.OutboxRepository,
	rewards *RewardAdapter,
	clock *infra.EventClock,
	logger *slog.Logger,
) *Service {
	return &Service{
		pool:      pool,
		surveys:   surveys,
		responses: responses,
		outbox:    outbox,
		rewards:   rewards,
		clock:     clock,
		logger:    logger,
	}
}

// ActiveSurvey is one listable survey, annotated with the caller's open
// response if a trigger or earlier session already spawned one.
type ActiveSurvey struct {
	domain.Survey
	OpenResponseID *int64 `json:"open_response_id,omitempty"`
}

// ListActive returns the surveys the user can take right now.
func (s *Service) ListActive(ctx context.Context, userID uuid.UUID) ([]ActiveSurvey, error) {
	surveys, err := s.surveys.ListActive(ctx, s.pool, s.clock.Now())
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(surveys))
	for _, sv := range surveys {
		ids = append(ids, sv.ID)
	}
	open, err := s.responses.ListOpenBySurveys(ctx, s.pool, ids, userID)
	if err != nil {
		return nil, err
	}

	out := make([]ActiveSurvey, 0, len(surveys))
	for _, sv := range surveys {
		item := ActiveSurvey{Survey: sv}
		if respID, ok := open[sv.ID]; ok {
			id := respID
			item.OpenResponseID = &id
		}
		out = append(out, item)
	}

	return out, nil
}

// Session is the working view of one survey attempt: the definition, its
// questions, and whatever the user answered so far.
type Session struct {
	Survey    domain.Survey           `json:"survey"`
	Response  domain.SurveyResponse   `json:"response"`
	Questions []domain.SurveyQuestion `json:"questions"`
	Answers   []domain.SurveyAnswer   `json:"answers"`
}

// GetSession returns the user's session for a survey, reusing the open
// response or creating a fresh PENDING one.
func (s *Service) GetSession(ctx context.Context, userID uuid.UUID, surveyID int64) (*Session, error) {
	sv, err := s.surveys.FindByID(ctx, s.pool, surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil || sv.Status != domain.SurveyActive || !sv.InWindow(s.clock.Now()) {
		return nil, domain.ErrNotFound("survey", fmt.Sprintf("%d", surveyID))
	}

	resp, err := s.responses.FindLatest(ctx, s.pool, surveyID, userID)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Status == domain.ResponseCompleted || resp.Status == domain.ResponseDropped || resp.Status == domain.ResponseExpired {
		resp, err = s.responses.Create(ctx, s.pool, surveyID, userID, nil, s.clock.Now())
		if err != nil {
			return nil, err
		}
	}

	questions, err := s.surveys.ListQuestions(ctx, s.pool, surveyID)
	if err != nil {
		return nil, err
	}
	answers, err := s.responses.ListAnswers(ctx, s.pool, resp.ID)
	if err != nil {
		return nil, err
	}

	return &Session{Survey: *sv, Response: *resp, Questions: questions, Answers: answers}, nil
}

// AnswerInput is one submitted answer.
type AnswerInput struct {
	QuestionID   int64           `json:"question_id"`
	OptionID     *int64          `json:"option_id,omitempty"`
	AnswerText   string          `json:"answer_text,omitempty"`
	AnswerNumber *int64          `json:"answer_number,omitempty"`
	MetaJSON     json.RawMessage `json:"meta_json,omitempty"`
}

// SaveAnswers upserts a batch of answers on an open response and marks it
// IN_PROGRESS. Re-answering a question replaces the prior answer.
func (s *Service) SaveAnswers(ctx context.Context, userID uuid.UUID, responseID int64, inputs []AnswerInput) error {
	resp, err := s.ownedResponse(ctx, userID, responseID)
	if err != nil {
		return err
	}
	if resp.Status == domain.ResponseCompleted {
		return domain.ErrResponseCompleted()
	}
	if len(inputs) == 0 {
		return domain.ErrValidation("no answers submitted")
	}

	now := s.clock.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin answers tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastQuestionID *int64
	for _, in := range inputs {
		if err := s.responses.UpsertAnswer(ctx, tx, domain.SurveyAnswer{
			ResponseID:   responseID,
			QuestionID:   in.QuestionID,
			OptionID:     in.OptionID,
			AnswerText:   in.AnswerText,
			AnswerNumber: in.AnswerNumber,
			MetaJSON:     in.MetaJSON,
			AnsweredAt:   now,
		}); err != nil {
			return err
		}
		q := in.QuestionID
		lastQuestionID = &q
	}

	if err := s.responses.MarkInProgress(ctx, tx, responseID, lastQuestionID, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit answers tx: %w", err)
	}

	return nil
}

// CompleteResult is returned by Complete.
type CompleteResult struct {
	ResponseID    int64  `json:"response_id"`
	RewardGranted bool   `json:"reward_granted"`
	ToastMessage  string `json:"toast_message,omitempty"`
}

// Complete finishes a response: every required question must hold a valid
// answer (unless forceSubmit waives the gate), the response flips to
// COMPLETED exactly once, and the survey's configured reward is delivered
// through the reward adapter. Completion commits before reward delivery
// starts, so a reward failure never undoes the completed response.
// Completing an already-COMPLETED response is not an error: it skips
// straight to reward application, which is the recovery path when a crash
// separated the completion commit from the grant.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID, responseID int64, forceSubmit bool) (*CompleteResult, error) {
	resp, err := s.ownedResponse(ctx, userID, responseID)
	if err != nil {
		return nil, err
	}

	sv, err := s.surveys.FindByID(ctx, s.pool, resp.SurveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, domain.ErrNotFound("survey", fmt.Sprintf("%d", resp.SurveyID))
	}

	if resp.Status != domain.ResponseCompleted {
		questions, err := s.surveys.ListQuestions(ctx, s.pool, resp.SurveyID)
		if err != nil {
			return nil, err
		}
		answers, err := s.responses.ListAnswers(ctx, s.pool, responseID)
		if err != nil {
			return nil, err
		}

		byQuestion := make(map[int64]domain.SurveyAnswer, len(answers))
		for _, a := range answers {
			byQuestion[a.QuestionID] = a
		}
		if !forceSubmit {
			if missing := domain.MissingRequired(questions, byQuestion); len(missing) > 0 {
				return nil, domain.ErrRequiredAnswersMissing(missing)
			}
		}

		now := s.clock.Now()
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin complete tx: %w", err)
		}
		defer tx.Rollback(ctx)

		completed, err := s.responses.MarkCompleted(ctx, tx, responseID, now)
		if err != nil {
			return nil, err
		}
		if completed {
			// Only the winning completion emits the event; a concurrent
			// loser falls through to reward application, where the
			// scheduling gate arbitrates.
			evt := domain.NewSurveyCompletedEvent(userID, resp.SurveyID, responseID, resp.RewardStatus)
			if err := s.outbox.Insert(ctx, tx, evt); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit complete tx: %w", err)
		}

		if completed {
			s.logger.Info("survey response completed",
				"response_id", responseID, "survey_id", resp.SurveyID, "user_id", userID)
		}
	}

	granted, toast, err := s.rewards.Apply(ctx, resp, sv)
	if err != nil {
		return nil, err
	}

	return &CompleteResult{ResponseID: responseID, RewardGranted: granted, ToastMessage: toast}, nil
}

// ownedResponse loads a response and checks ownership.
func (s *Service) ownedResponse(ctx context.Context, userID uuid.UUID, responseID int64) (*domain.SurveyResponse, error) {
	resp, err := s.responses.FindByID(ctx, s.pool, responseID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, domain.ErrNotFound("survey response", fmt.Sprintf("%d", responseID))
	}
	if resp.UserID != userID {
		return nil, domain.ErrForbidden("response belongs to another user")
	}
	return resp, nil
}
