package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/snowfest/platform/internal/domain"
)

type walletRepository struct{}

// NewWalletRepository creates a wallet repository.
func NewWalletRepository() WalletRepository {
	return &walletRepository{}
}

func (r *walletRepository) Grant(ctx context.Context, db DBTX, userID uuid.UUID, tokenType domain.TokenType, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrValidation("grant amount must be positive")
	}

	// Single-statement upsert: the balance arithmetic happens server-side,
	// so concurrent grants for the same wallet serialize on the row.
	var balance int64
	err := db.QueryRow(ctx, `
		INSERT INTO game_wallets (user_id, token_type, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token_type)
		DO UPDATE SET balance = game_wallets.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance`,
		userID, tokenType, amount,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("grant tokens: %w", err)
	}

	return balance, nil
}

func (r *walletRepository) Revoke(ctx context.Context, db DBTX, userID uuid.UUID, tokenType domain.TokenType, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrValidation("revoke amount must be positive")
	}

	// The WHERE clause carries the zero-floor invariant: no matching row
	// means either no wallet or not enough balance, both INSUFFICIENT_BALANCE.
	var balance int64
	err := db.QueryRow(ctx, `
		UPDATE game_wallets
		SET balance = balance - $3, updated_at = now()
		WHERE user_id = $1 AND token_type = $2 AND balance >= $3
		RETURNING balance`,
		userID, tokenType, amount,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrInsufficientBalance()
	}
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}

	return balance, nil
}

func (r *walletRepository) GetBalance(ctx context.Context, db DBTX, userID uuid.UUID, tokenType domain.TokenType) (int64, error) {
	var balance int64
	err := db.QueryRow(ctx, `
		SELECT balance FROM game_wallets
		WHERE user_id = $1 AND token_type = $2`,
		userID, tokenType,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

func (r *walletRepository) ListWallets(ctx context.Context, db DBTX, userID *uuid.UUID) ([]domain.GameWallet, error) {
	query := `
		SELECT user_id, token_type, balance, created_at, updated_at
		FROM game_wallets`
	args := []interface{}{}
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}
	query += ` ORDER BY user_id, token_type`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.GameWallet
	for rows.Next() {
		var w domain.GameWallet
		if err := rows.Scan(&w.UserID, &w.TokenType, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}

	return wallets, rows.Err()
}
