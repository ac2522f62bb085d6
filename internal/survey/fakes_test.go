package survey

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDB satisfies repository.DB; its transactions are no-ops so service
// flows run end to end against the in-memory repositories.
type fakeDB struct{}

func (fakeDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) { return nil, nil }
func (fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row       { return nil }
func (fakeDB) Begin(context.Context) (pgx.Tx, error)                          { return fakeTx{}, nil }

type fakeTx struct{}

func (fakeTx) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(context.Context) error          { return nil }
func (fakeTx) Rollback(context.Context) error        { return nil }
func (fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (fakeTx) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeTx) Query(context.Context, string, ...interface{}) (pgx.Rows, error) { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...interface{}) pgx.Row        { return nil }
func (fakeTx) Conn() *pgx.Conn                                                 { return nil }

type fakeSurveyRepo struct {
	surveys   []domain.Survey
	questions map[int64][]domain.SurveyQuestion
	rules     []domain.SurveyTriggerRule
}

func (f *fakeSurveyRepo) FindByID(_ context.Context, _ repository.DBTX, id int64) (*domain.Survey, error) {
	for i := range f.surveys {
		if f.surveys[i].ID == id {
			return &f.surveys[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSurveyRepo) ListActive(_ context.Context, _ repository.DBTX, now time.Time) ([]domain.Survey, error) {
	var out []domain.Survey
	for _, s := range f.surveys {
		if s.Status == domain.SurveyActive && s.InWindow(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSurveyRepo) ListQuestions(_ context.Context, _ repository.DBTX, surveyID int64) ([]domain.SurveyQuestion, error) {
	return f.questions[surveyID], nil
}

func (f *fakeSurveyRepo) ListActiveTriggerRules(_ context.Context, _ repository.DBTX, triggerType domain.SurveyTriggerType) ([]domain.SurveyTriggerRule, error) {
	var out []domain.SurveyTriggerRule
	for _, r := range f.rules {
		if r.IsActive && r.TriggerType == triggerType {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeResponseRepo struct {
	responses []domain.SurveyResponse
	statuses  map[int64]domain.SurveyRewardStatus
	nextID    int64
}

func (f *fakeResponseRepo) FindByID(_ context.Context, _ repository.DBTX, id int64) (*domain.SurveyResponse, error) {
	for i := range f.responses {
		if f.responses[i].ID == id {
			return &f.responses[i], nil
		}
	}
	return nil, nil
}

func (f *fakeResponseRepo) FindLatest(_ context.Context, _ repository.DBTX, surveyID int64, userID uuid.UUID) (*domain.SurveyResponse, error) {
	var latest *domain.SurveyResponse
	for i := range f.responses {
		r := &f.responses[i]
		if r.SurveyID == surveyID && r.UserID == userID {
			if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
				latest = r
			}
		}
	}
	return latest, nil
}

func (f *fakeResponseRepo) ListOpenBySurveys(_ context.Context, _ repository.DBTX, surveyIDs []int64, userID uuid.UUID) (map[int64]int64, error) {
	open := map[int64]int64{}
	for _, id := range surveyIDs {
		for i := range f.responses {
			r := &f.responses[i]
			if r.SurveyID == id && r.UserID == userID &&
				(r.Status == domain.ResponsePending || r.Status == domain.ResponseInProgress) {
				open[id] = r.ID
			}
		}
	}
	return open, nil
}

func (f *fakeResponseRepo) Create(_ context.Context, _ repository.DBTX, surveyID int64, userID uuid.UUID, triggerRuleID *int64, now time.Time) (*domain.SurveyResponse, error) {
	f.nextID++
	r := domain.SurveyResponse{
		ID:             f.nextID,
		SurveyID:       surveyID,
		UserID:         userID,
		TriggerRuleID:  triggerRuleID,
		Status:         domain.ResponsePending,
		RewardStatus:   domain.RewardNone,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	f.responses = append(f.responses, r)
	return &r, nil
}

func (f *fakeResponseRepo) MarkInProgress(_ context.Context, _ repository.DBTX, responseID int64, lastQuestionID *int64, now time.Time) error {
	for i := range f.responses {
		if f.responses[i].ID == responseID {
			f.responses[i].Status = domain.ResponseInProgress
			f.responses[i].LastQuestionID = lastQuestionID
			f.responses[i].LastActivityAt = now
		}
	}
	return nil
}

func (f *fakeResponseRepo) MarkCompleted(_ context.Context, _ repository.DBTX, responseID int64, now time.Time) (bool, error) {
	for i := range f.responses {
		if f.responses[i].ID == responseID && f.responses[i].Status != domain.ResponseCompleted {
			f.responses[i].Status = domain.ResponseCompleted
			f.responses[i].CompletedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResponseRepo) ScheduleReward(_ context.Context, _ repository.DBTX, responseID int64) (bool, error) {
	for i := range f.responses {
		if f.responses[i].ID != responseID {
			continue
		}
		switch f.responses[i].RewardStatus {
		case domain.RewardNone, domain.RewardFailed:
			f.responses[i].RewardStatus = domain.RewardScheduled
			if f.statuses == nil {
				f.statuses = map[int64]domain.SurveyRewardStatus{}
			}
			f.statuses[responseID] = domain.RewardScheduled
			return true, nil
		}
		return false, nil
	}
	return false, nil
}

func (f *fakeResponseRepo) SetRewardStatus(_ context.Context, _ repository.DBTX, responseID int64, status domain.SurveyRewardStatus, _ json.RawMessage) error {
	if f.statuses == nil {
		f.statuses = map[int64]domain.SurveyRewardStatus{}
	}
	f.statuses[responseID] = status
	for i := range f.responses {
		if f.responses[i].ID == responseID {
			f.responses[i].RewardStatus = status
		}
	}
	return nil
}

func (f *fakeResponseRepo) ListAnswers(_ context.Context, _ repository.DBTX, _ int64) ([]domain.SurveyAnswer, error) {
	return nil, nil
}

func (f *fakeResponseRepo) UpsertAnswer(_ context.Context, _ repository.DBTX, _ domain.SurveyAnswer) error {
	return nil
}

func (f *fakeResponseRepo) CountByRule(_ context.Context, _ repository.DBTX, userID uuid.UUID, surveyID, ruleID int64) (int, error) {
	count := 0
	for _, r := range f.responses {
		if r.UserID == userID && r.SurveyID == surveyID && r.TriggerRuleID != nil && *r.TriggerRuleID == ruleID {
			count++
		}
	}
	return count, nil
}

func (f *fakeResponseRepo) FindLatestByRule(_ context.Context, _ repository.DBTX, userID uuid.UUID, surveyID, ruleID int64) (*domain.SurveyResponse, error) {
	var latest *domain.SurveyResponse
	for i := range f.responses {
		r := &f.responses[i]
		if r.UserID == userID && r.SurveyID == surveyID && r.TriggerRuleID != nil && *r.TriggerRuleID == ruleID {
			if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
				latest = r
			}
		}
	}
	return latest, nil
}

type fakeActivityRepo struct {
	rows []domain.UserActivity
}

func (f *fakeActivityRepo) Touch(_ context.Context, _ repository.DBTX, userID uuid.UUID, at time.Time) error {
	for i := range f.rows {
		if f.rows[i].UserID == userID {
			if at.After(f.rows[i].LastSeenAt) {
				f.rows[i].LastSeenAt = at
			}
			return nil
		}
	}
	f.rows = append(f.rows, domain.UserActivity{UserID: userID, LastSeenAt: at})
	return nil
}

func (f *fakeActivityRepo) ListAll(_ context.Context, _ repository.DBTX) ([]domain.UserActivity, error) {
	return f.rows, nil
}

type fakeOutboxRepo struct {
	drafts []domain.OutboxDraft
}

func (f *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

func (f *fakeOutboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, _ int) ([]repository.OutboxRow, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}
