package seasonpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/infra"
	"github.com/snowfest/platform/internal/repository"
	"github.com/snowfest/platform/internal/reward"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDB satisfies repository.DB; its transactions are no-ops so the
// stamp and claim flows run end to end against the in-memory repository.
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

type fakeSeasonRepo struct {
	configs    []domain.SeasonConfig
	levels     map[int][]domain.SeasonPassLevel
	progress   []domain.SeasonPassProgress
	rewardLogs []domain.SeasonPassRewardLog
	stampLogs  []domain.SeasonPassStampLog
	nextID     int64
}

func (f *fakeSeasonRepo) ListActiveSeasons(_ context.Context, _ repository.DBTX) ([]domain.SeasonConfig, error) {
	var out []domain.SeasonConfig
	for _, c := range f.configs {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSeasonRepo) ListLevels(_ context.Context, _ repository.DBTX, seasonID int) ([]domain.SeasonPassLevel, error) {
	return f.levels[seasonID], nil
}

func (f *fakeSeasonRepo) FindLevel(_ context.Context, _ repository.DBTX, seasonID, level int) (*domain.SeasonPassLevel, error) {
	for _, l := range f.levels[seasonID] {
		if l.Level == level {
			return &l, nil
		}
	}
	return nil, nil
}

func (f *fakeSeasonRepo) FindProgress(_ context.Context, _ repository.DBTX, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error) {
	for i := range f.progress {
		if f.progress[i].UserID == userID && f.progress[i].SeasonID == seasonID {
			return &f.progress[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSeasonRepo) FindProgressForUpdate(ctx context.Context, _ pgx.Tx, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error) {
	return f.FindProgress(ctx, nil, userID, seasonID)
}

func (f *fakeSeasonRepo) CreateProgress(ctx context.Context, db repository.DBTX, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error) {
	if p, _ := f.FindProgress(ctx, db, userID, seasonID); p != nil {
		return p, nil
	}
	f.nextID++
	f.progress = append(f.progress, domain.SeasonPassProgress{
		ID: f.nextID, UserID: userID, SeasonID: seasonID,
	})
	return &f.progress[len(f.progress)-1], nil
}

func (f *fakeSeasonRepo) UpdateProgress(_ context.Context, _ repository.DBTX, progressID int64, xp, level int, lastPlay time.Time) error {
	for i := range f.progress {
		if f.progress[i].ID == progressID {
			f.progress[i].CurrentXP = xp
			f.progress[i].CurrentLevel = level
			lp := lastPlay
			f.progress[i].LastPlayDate = &lp
		}
	}
	return nil
}

func (f *fakeSeasonRepo) CountStamps(_ context.Context, _ repository.DBTX, progressID int64) (int, error) {
	count := 0
	for _, l := range f.stampLogs {
		if l.ProgressID == progressID {
			count++
		}
	}
	return count, nil
}

func (f *fakeSeasonRepo) InsertStampLog(_ context.Context, _ repository.DBTX, log domain.SeasonPassStampLog) error {
	for _, existing := range f.stampLogs {
		if existing.ProgressID == log.ProgressID && existing.StampDate.Equal(log.StampDate) {
			return domain.ErrAlreadyStampedToday()
		}
	}
	f.stampLogs = append(f.stampLogs, log)
	return nil
}

func (f *fakeSeasonRepo) InsertRewardLog(_ context.Context, _ repository.DBTX, log domain.SeasonPassRewardLog) (bool, error) {
	for _, existing := range f.rewardLogs {
		if existing.UserID == log.UserID && existing.SeasonID == log.SeasonID && existing.Level == log.Level {
			return false, nil
		}
	}
	f.rewardLogs = append(f.rewardLogs, log)
	return true, nil
}

func (f *fakeSeasonRepo) ListRewardLogs(_ context.Context, _ repository.DBTX, userID uuid.UUID, seasonID int) ([]domain.SeasonPassRewardLog, error) {
	var out []domain.SeasonPassRewardLog
	for _, l := range f.rewardLogs {
		if l.UserID == userID && l.SeasonID == seasonID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSeasonRepo) ListProgress(_ context.Context, _ repository.DBTX, seasonID *int, userID *uuid.UUID) ([]domain.SeasonPassProgress, error) {
	var out []domain.SeasonPassProgress
	for _, p := range f.progress {
		if seasonID != nil && p.SeasonID != *seasonID {
			continue
		}
		if userID != nil && p.UserID != *userID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeActivityRepo struct{}

func (fakeActivityRepo) Touch(_ context.Context, _ repository.DBTX, _ uuid.UUID, _ time.Time) error {
	return nil
}
func (fakeActivityRepo) ListAll(_ context.Context, _ repository.DBTX) ([]domain.UserActivity, error) {
	return nil, nil
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

// stubDeliverer counts deliveries and can be told to fail one amount.
type stubDeliverer struct {
	calls      int
	failAmount int64
}

func (d *stubDeliverer) Deliver(_ context.Context, _ repository.DBTX, _ uuid.UUID, rewardType string, amount int64, _ map[string]interface{}) (*reward.Delivery, error) {
	d.calls++
	if d.failAmount != 0 && amount == d.failAmount {
		return nil, fmt.Errorf("wallet unavailable")
	}
	tokenType, ok := domain.ParseTokenType(rewardType)
	if !ok || amount <= 0 {
		return &reward.Delivery{Granted: false, Amount: amount}, nil
	}
	return &reward.Delivery{Granted: true, TokenType: tokenType, Amount: amount, NewBalance: amount}, nil
}

type captureListener struct {
	levels []int
}

func (l *captureListener) HandleLevelUp(_ context.Context, _ uuid.UUID, newLevel int) {
	l.levels = append(l.levels, newLevel)
}

func activeSeason(id int) domain.SeasonConfig {
	return domain.SeasonConfig{
		ID:             id,
		SeasonName:     "winter fest",
		StartDate:      time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
		MaxLevel:       5,
		BaseXPPerStamp: 10,
		IsActive:       true,
	}
}

func newTestEngine(repo *fakeSeasonRepo, now time.Time) (*Engine, *fakeOutboxRepo, *stubDeliverer) {
	outbox := &fakeOutboxRepo{}
	deliverer := &stubDeliverer{}
	e := NewEngine(fakeDB{}, repo, outbox, fakeActivityRepo{}, deliverer, infra.NewFixedClock(now), testLogger())
	return e, outbox, deliverer
}

func TestCurrentSeason(t *testing.T) {
	now := time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)

	t.Run("resolves the active season", func(t *testing.T) {
		repo := &fakeSeasonRepo{configs: []domain.SeasonConfig{activeSeason(1)}}
		e, _, _ := newTestEngine(repo, now)

		season, err := e.CurrentSeason(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, season.ID)
	})

	t.Run("no season configured", func(t *testing.T) {
		e, _, _ := newTestEngine(&fakeSeasonRepo{}, now)

		_, err := e.CurrentSeason(context.Background())
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "NO_ACTIVE_SEASON", appErr.Code)
	})

	t.Run("overlapping seasons conflict", func(t *testing.T) {
		repo := &fakeSeasonRepo{configs: []domain.SeasonConfig{activeSeason(1), activeSeason(2)}}
		e, _, _ := newTestEngine(repo, now)

		_, err := e.CurrentSeason(context.Background())
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "NO_ACTIVE_SEASON_CONFLICT", appErr.Code)
	})
}

func TestGetStatus(t *testing.T) {
	now := time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	levels := []domain.SeasonPassLevel{
		{SeasonID: 1, Level: 1, RequiredXP: 10, RewardType: "POINT", RewardAmount: 100, AutoClaim: true},
		{SeasonID: 1, Level: 2, RequiredXP: 30, RewardType: "POINT", RewardAmount: 200, AutoClaim: false},
	}

	t.Run("lazily creates progress", func(t *testing.T) {
		repo := &fakeSeasonRepo{
			configs: []domain.SeasonConfig{activeSeason(1)},
			levels:  map[int][]domain.SeasonPassLevel{1: levels},
		}
		e, _, _ := newTestEngine(repo, now)

		status, err := e.GetStatus(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 0, status.CurrentXP)
		assert.Equal(t, 0, status.CurrentLevel)
		assert.False(t, status.StampedToday)
		require.Len(t, repo.progress, 1, "first status query creates the row")

		// Second query reuses the same row.
		_, err = e.GetStatus(context.Background(), userID)
		require.NoError(t, err)
		assert.Len(t, repo.progress, 1)
	})

	t.Run("annotates reached and claimed levels", func(t *testing.T) {
		stamped := now.Add(-26 * time.Hour)
		repo := &fakeSeasonRepo{
			configs: []domain.SeasonConfig{activeSeason(1)},
			levels:  map[int][]domain.SeasonPassLevel{1: levels},
			progress: []domain.SeasonPassProgress{{
				ID: 1, UserID: userID, SeasonID: 1,
				CurrentXP: 15, CurrentLevel: 1, LastPlayDate: &stamped,
			}},
			rewardLogs: []domain.SeasonPassRewardLog{
				{UserID: userID, SeasonID: 1, Level: 1, Source: domain.RewardSourceAutoClaim},
			},
		}
		e, _, _ := newTestEngine(repo, now)

		status, err := e.GetStatus(context.Background(), userID)
		require.NoError(t, err)
		require.Len(t, status.Levels, 2)
		assert.True(t, status.Levels[0].Reached)
		assert.True(t, status.Levels[0].Claimed)
		assert.False(t, status.Levels[1].Reached)
		assert.False(t, status.Levels[1].Claimed)
		assert.False(t, status.StampedToday, "yesterday's stamp does not block today")
	})

	t.Run("stamped today flag", func(t *testing.T) {
		stamped := now.Add(-2 * time.Hour)
		repo := &fakeSeasonRepo{
			configs: []domain.SeasonConfig{activeSeason(1)},
			levels:  map[int][]domain.SeasonPassLevel{1: levels},
			progress: []domain.SeasonPassProgress{{
				ID: 1, UserID: userID, SeasonID: 1, LastPlayDate: &stamped,
			}},
		}
		e, _, _ := newTestEngine(repo, now)

		status, err := e.GetStatus(context.Background(), userID)
		require.NoError(t, err)
		assert.True(t, status.StampedToday)
	})
}

func TestStamp(t *testing.T) {
	now := time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	levels := []domain.SeasonPassLevel{
		{SeasonID: 1, Level: 1, RequiredXP: 10, RewardType: "POINT", RewardAmount: 100, AutoClaim: true},
		{SeasonID: 1, Level: 2, RequiredXP: 20, RewardType: "POINT", RewardAmount: 200, AutoClaim: true},
		{SeasonID: 1, Level: 3, RequiredXP: 30, RewardType: "POINT", RewardAmount: 300, AutoClaim: false},
	}
	newRepo := func() *fakeSeasonRepo {
		return &fakeSeasonRepo{
			configs: []domain.SeasonConfig{activeSeason(1)},
			levels:  map[int][]domain.SeasonPassLevel{1: levels},
		}
	}

	t.Run("first stamp advances and auto-claims", func(t *testing.T) {
		repo := newRepo()
		e, outbox, deliverer := newTestEngine(repo, now)
		listener := &captureListener{}
		e.SetLevelUpListener(listener)

		result, err := e.Stamp(context.Background(), userID, "ROULETTE", 0)
		require.NoError(t, err)
		assert.Equal(t, 10, result.XPAdded)
		assert.Equal(t, 10, result.CurrentXP)
		assert.Equal(t, 1, result.CurrentLevel)
		assert.Equal(t, 1, result.StampCount)
		require.Len(t, result.Rewards, 1)
		assert.Equal(t, 1, result.Rewards[0].Level)

		assert.Equal(t, 1, deliverer.calls)
		assert.Equal(t, []int{1}, listener.levels)
		require.Len(t, repo.stampLogs, 1)
		assert.Equal(t, "ROULETTE", repo.stampLogs[0].SourceFeatureType)

		var types []domain.EventType
		for _, d := range outbox.drafts {
			types = append(types, d.EventType)
		}
		assert.Contains(t, types, domain.EventSeasonStamped)
		assert.Contains(t, types, domain.EventLevelClaimed)
	})

	t.Run("second stamp same day rejected", func(t *testing.T) {
		repo := newRepo()
		e, _, deliverer := newTestEngine(repo, now)

		_, err := e.Stamp(context.Background(), userID, "ROULETTE", 0)
		require.NoError(t, err)

		_, err = e.Stamp(context.Background(), userID, "DICE", 0)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "ALREADY_STAMPED_TODAY", appErr.Code)
		assert.Len(t, repo.stampLogs, 1)
		assert.Equal(t, 1, deliverer.calls, "the rejected stamp grants nothing")
	})

	t.Run("stamp log uniqueness backs the daily gate", func(t *testing.T) {
		// Same day, but the progress row does not show it (e.g. a racer
		// committed between our read and write): the log constraint is
		// the authority.
		repo := newRepo()
		e, _, _ := newTestEngine(repo, now)

		_, err := e.Stamp(context.Background(), userID, "ROULETTE", 0)
		require.NoError(t, err)
		repo.progress[0].LastPlayDate = nil

		_, err = e.Stamp(context.Background(), userID, "DICE", 0)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "ALREADY_STAMPED_TODAY", appErr.Code)
	})

	t.Run("xp bonus can jump several levels", func(t *testing.T) {
		repo := newRepo()
		e, _, deliverer := newTestEngine(repo, now)
		listener := &captureListener{}
		e.SetLevelUpListener(listener)

		result, err := e.Stamp(context.Background(), userID, "ROULETTE", 15)
		require.NoError(t, err)
		assert.Equal(t, 25, result.XPAdded)
		assert.Equal(t, 25, result.CurrentXP)
		assert.Equal(t, 2, result.CurrentLevel)
		require.Len(t, result.Rewards, 2, "every crossed auto level is granted")
		assert.Equal(t, 1, result.Rewards[0].Level)
		assert.Equal(t, 2, result.Rewards[1].Level)
		assert.Equal(t, 2, deliverer.calls)
		assert.Equal(t, []int{2}, listener.levels)
	})

	t.Run("negative xp bonus is ignored", func(t *testing.T) {
		repo := newRepo()
		e, _, _ := newTestEngine(repo, now)

		result, err := e.Stamp(context.Background(), userID, "ROULETTE", -5)
		require.NoError(t, err)
		assert.Equal(t, 10, result.XPAdded)
	})

	t.Run("one failing auto-claim does not lose the stamp", func(t *testing.T) {
		repo := newRepo()
		e, _, deliverer := newTestEngine(repo, now)
		deliverer.failAmount = 200

		result, err := e.Stamp(context.Background(), userID, "ROULETTE", 15)
		require.NoError(t, err, "the stamp itself commits")
		assert.Equal(t, 2, result.CurrentLevel)
		require.Len(t, result.Rewards, 1, "the failed level is skipped, not granted")
		assert.Equal(t, 1, result.Rewards[0].Level)
	})
}

func TestClaim(t *testing.T) {
	now := time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	levels := []domain.SeasonPassLevel{
		{SeasonID: 1, Level: 1, RequiredXP: 10, RewardType: "POINT", RewardAmount: 100, AutoClaim: true},
		{SeasonID: 1, Level: 2, RequiredXP: 20, RewardType: "POINT", RewardAmount: 200, AutoClaim: false},
		{SeasonID: 1, Level: 3, RequiredXP: 30, RewardType: "POINT", RewardAmount: 300, AutoClaim: false},
	}
	newRepo := func() *fakeSeasonRepo {
		return &fakeSeasonRepo{
			configs: []domain.SeasonConfig{activeSeason(1)},
			levels:  map[int][]domain.SeasonPassLevel{1: levels},
			progress: []domain.SeasonPassProgress{{
				ID: 1, UserID: userID, SeasonID: 1, CurrentXP: 25, CurrentLevel: 2,
			}},
		}
	}

	t.Run("claims a reached level once", func(t *testing.T) {
		repo := newRepo()
		e, outbox, deliverer := newTestEngine(repo, now)

		claimed, err := e.Claim(context.Background(), userID, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, claimed.Level)
		assert.Equal(t, int64(200), claimed.RewardAmount)
		assert.Equal(t, 1, deliverer.calls)
		require.Len(t, repo.rewardLogs, 1)
		assert.Equal(t, domain.RewardSourceManual, repo.rewardLogs[0].Source)
		require.Len(t, outbox.drafts, 1)
		assert.Equal(t, domain.EventLevelClaimed, outbox.drafts[0].EventType)

		_, err = e.Claim(context.Background(), userID, 2)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "ALREADY_CLAIMED", appErr.Code)
		assert.Equal(t, 1, deliverer.calls, "re-claim grants nothing")
	})

	t.Run("unreached level", func(t *testing.T) {
		e, _, _ := newTestEngine(newRepo(), now)

		_, err := e.Claim(context.Background(), userID, 3)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "LEVEL_NOT_REACHED", appErr.Code)
	})

	t.Run("no progress", func(t *testing.T) {
		e, _, _ := newTestEngine(newRepo(), now)

		_, err := e.Claim(context.Background(), uuid.New(), 1)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "NO_PROGRESS", appErr.Code)
	})

	t.Run("unknown level", func(t *testing.T) {
		repo := newRepo()
		repo.progress[0].CurrentLevel = 9
		e, _, _ := newTestEngine(repo, now)

		_, err := e.Claim(context.Background(), userID, 9)
		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "NOT_FOUND", appErr.Code)
	})
}

func TestBackfillDryRun(t *testing.T) {
	now := time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)
	userA := uuid.New()
	userB := uuid.New()
	levels := []domain.SeasonPassLevel{
		{SeasonID: 1, Level: 1, RequiredXP: 10, RewardType: "POINT", RewardAmount: 100, AutoClaim: true},
		{SeasonID: 1, Level: 2, RequiredXP: 30, RewardType: "POINT", RewardAmount: 200, AutoClaim: true},
		{SeasonID: 1, Level: 3, RequiredXP: 60, RewardType: "POINT", RewardAmount: 300, AutoClaim: false},
	}
	repo := &fakeSeasonRepo{
		configs: []domain.SeasonConfig{activeSeason(1)},
		levels:  map[int][]domain.SeasonPassLevel{1: levels},
		progress: []domain.SeasonPassProgress{
			{ID: 1, UserID: userA, SeasonID: 1, CurrentXP: 70, CurrentLevel: 3},
			{ID: 2, UserID: userB, SeasonID: 1, CurrentXP: 15, CurrentLevel: 1},
		},
		rewardLogs: []domain.SeasonPassRewardLog{
			// userA already got level 1; level 2 (auto) is missing, 3 is manual.
			{UserID: userA, SeasonID: 1, Level: 1, Source: domain.RewardSourceAutoClaim},
		},
	}
	e, _, _ := newTestEngine(repo, now)

	report, err := e.Backfill(context.Background(), BackfillOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Granted, "userA level 2 + userB level 1")
	assert.Equal(t, 1, report.Skipped, "userA level 1 already logged")
	assert.Zero(t, report.Failed)
	assert.Empty(t, repo.rewardLogs[1:], "dry run writes nothing")
}

func TestBackfillGrantsMissedLevels(t *testing.T) {
	now := time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	levels := []domain.SeasonPassLevel{
		{SeasonID: 1, Level: 1, RequiredXP: 10, RewardType: "POINT", RewardAmount: 100, AutoClaim: true},
		{SeasonID: 1, Level: 2, RequiredXP: 30, RewardType: "POINT", RewardAmount: 200, AutoClaim: true},
	}
	repo := &fakeSeasonRepo{
		configs: []domain.SeasonConfig{activeSeason(1)},
		levels:  map[int][]domain.SeasonPassLevel{1: levels},
		progress: []domain.SeasonPassProgress{
			{ID: 1, UserID: userID, SeasonID: 1, CurrentXP: 35, CurrentLevel: 2},
		},
	}
	e, _, deliverer := newTestEngine(repo, now)

	report, err := e.Backfill(context.Background(), BackfillOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Granted)
	assert.Equal(t, 2, deliverer.calls)
	require.Len(t, repo.rewardLogs, 2)
	assert.Equal(t, domain.RewardSourceBackfill, repo.rewardLogs[0].Source)

	// Re-run: everything already logged.
	report, err = e.Backfill(context.Background(), BackfillOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Granted)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 2, deliverer.calls, "idempotent re-run grants nothing")
}

func TestBackfillFiltersByUser(t *testing.T) {
	now := time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)
	userA := uuid.New()
	userB := uuid.New()
	levels := []domain.SeasonPassLevel{
		{SeasonID: 1, Level: 1, RequiredXP: 10, RewardType: "POINT", RewardAmount: 100, AutoClaim: true},
	}
	repo := &fakeSeasonRepo{
		configs: []domain.SeasonConfig{activeSeason(1)},
		levels:  map[int][]domain.SeasonPassLevel{1: levels},
		progress: []domain.SeasonPassProgress{
			{ID: 1, UserID: userA, SeasonID: 1, CurrentXP: 15, CurrentLevel: 1},
			{ID: 2, UserID: userB, SeasonID: 1, CurrentXP: 15, CurrentLevel: 1},
		},
	}
	e, _, _ := newTestEngine(repo, now)

	report, err := e.Backfill(context.Background(), BackfillOptions{UserID: &userA, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Granted)
}

func TestStampResultShape(t *testing.T) {
	// JSON field names are part of the client contract.
	raw, err := json.Marshal(domain.StampResult{SeasonID: 1, Rewards: []domain.ClaimedReward{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"season_id":1,"xp_added":0,"current_xp":0,"current_level":0,"stamp_count":0,"rewards":[]}`, string(raw))
}
