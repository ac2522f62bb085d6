package reward

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/repository"
)

type fakeWalletRepo struct {
	balances map[string]int64
	grantErr error
}

func walletKey(userID uuid.UUID, tokenType domain.TokenType) string {
	return userID.String() + "/" + string(tokenType)
}

func (f *fakeWalletRepo) Grant(_ context.Context, _ repository.DBTX, userID uuid.UUID, tokenType domain.TokenType, amount int64) (int64, error) {
	if f.grantErr != nil {
		return 0, f.grantErr
	}
	if f.balances == nil {
		f.balances = map[string]int64{}
	}
	f.balances[walletKey(userID, tokenType)] += amount
	return f.balances[walletKey(userID, tokenType)], nil
}

func (f *fakeWalletRepo) Revoke(_ context.Context, _ repository.DBTX, userID uuid.UUID, tokenType domain.TokenType, amount int64) (int64, error) {
	key := walletKey(userID, tokenType)
	if f.balances[key] < amount {
		return 0, domain.ErrInsufficientBalance()
	}
	f.balances[key] -= amount
	return f.balances[key], nil
}

func (f *fakeWalletRepo) GetBalance(_ context.Context, _ repository.DBTX, userID uuid.UUID, tokenType domain.TokenType) (int64, error) {
	return f.balances[walletKey(userID, tokenType)], nil
}

func (f *fakeWalletRepo) ListWallets(_ context.Context, _ repository.DBTX, _ *uuid.UUID) ([]domain.GameWallet, error) {
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliverGrantsKnownToken(t *testing.T) {
	wallets := &fakeWalletRepo{}
	outbox := &fakeOutboxRepo{}
	svc := NewService(wallets, outbox, testLogger())
	userID := uuid.New()

	d, err := svc.Deliver(context.Background(), nil, userID, "TICKET_ROULETTE", 3, map[string]interface{}{"source": "test"})
	require.NoError(t, err)
	assert.True(t, d.Granted)
	assert.Equal(t, domain.TokenTicketRoulette, d.TokenType)
	assert.Equal(t, int64(3), d.NewBalance)

	require.Len(t, outbox.drafts, 1)
	assert.Equal(t, domain.EventRewardGranted, outbox.drafts[0].EventType)
	assert.Equal(t, userID.String(), outbox.drafts[0].AggregateID)
}

func TestDeliverAccumulates(t *testing.T) {
	wallets := &fakeWalletRepo{}
	svc := NewService(wallets, &fakeOutboxRepo{}, testLogger())
	userID := uuid.New()

	_, err := svc.Deliver(context.Background(), nil, userID, "POINT", 100, nil)
	require.NoError(t, err)
	d, err := svc.Deliver(context.Background(), nil, userID, "POINT", 50, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(150), d.NewBalance)
}

func TestDeliverSkipsUnknownRewardType(t *testing.T) {
	wallets := &fakeWalletRepo{}
	outbox := &fakeOutboxRepo{}
	svc := NewService(wallets, outbox, testLogger())

	d, err := svc.Deliver(context.Background(), nil, uuid.New(), "GOLDEN_GOOSE", 5, nil)
	require.NoError(t, err, "unknown reward type is a no-op, never an error")
	assert.False(t, d.Granted)
	assert.Empty(t, wallets.balances)
	assert.Empty(t, outbox.drafts, "no granted event for a skipped delivery")
}

func TestDeliverSkipsNonPositiveAmount(t *testing.T) {
	svc := NewService(&fakeWalletRepo{}, &fakeOutboxRepo{}, testLogger())

	for _, amount := range []int64{0, -5} {
		d, err := svc.Deliver(context.Background(), nil, uuid.New(), "POINT", amount, nil)
		require.NoError(t, err)
		assert.False(t, d.Granted)
	}
}

func TestDeliverPropagatesWalletError(t *testing.T) {
	wallets := &fakeWalletRepo{grantErr: errors.New("connection reset")}
	outbox := &fakeOutboxRepo{}
	svc := NewService(wallets, outbox, testLogger())

	_, err := svc.Deliver(context.Background(), nil, uuid.New(), "POINT", 10, nil)
	require.Error(t, err)
	assert.Empty(t, outbox.drafts, "no event when the wallet write failed")
}

func TestDeliveryEventCarriesOccurredAt(t *testing.T) {
	outbox := &fakeOutboxRepo{}
	svc := NewService(&fakeWalletRepo{}, outbox, testLogger())

	before := time.Now()
	_, err := svc.Deliver(context.Background(), nil, uuid.New(), "TICKET_DICE", 1, nil)
	require.NoError(t, err)

	require.Len(t, outbox.drafts, 1)
	assert.False(t, outbox.drafts[0].OccurredAt.Before(before))
}
