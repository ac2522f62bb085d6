package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenType enumerates the in-game token currencies held in game_wallets.
type TokenType string

const (
	TokenTicketRoulette TokenType = "TICKET_ROULETTE"
	TokenTicketDice     TokenType = "TICKET_DICE"
	TokenTicketLottery  TokenType = "TICKET_LOTTERY"
	TokenPoint          TokenType = "POINT"
)

// ParseTokenType maps a reward_type string onto a wallet token type.
// Unrecognized values are not an error: the reward delivery contract treats
// them as "nothing to deliver".
func ParseTokenType(s string) (TokenType, bool) {
	switch TokenType(s) {
	case TokenTicketRoulette, TokenTicketDice, TokenTicketLottery, TokenPoint:
		return TokenType(s), true
	}
	return "", false
}

// GameWallet is a game_wallets row: one non-negative balance per
// (user_id, token_type). The zero floor is a hard invariant; revoke past
// it fails with INSUFFICIENT_BALANCE rather than clamping.
type GameWallet struct {
	UserID    uuid.UUID `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
