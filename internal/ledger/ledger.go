// Package ledger はユーザーごとのトークン残高と処理中フラグを管理します。
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	ledgerKeyPrefix = "ledger:"

	fieldTokens     = "tokens"
	fieldProcessing = "processing"
)

var (
	// ErrInsufficientBalance はトークン残高が不足している場合に返されます。
	ErrInsufficientBalance = errors.New("insufficient token balance")
	// ErrAlreadyProcessing は同一ユーザーのジョブが既に処理中の場合に返されます。
	ErrAlreadyProcessing = errors.New("another job is already processing")
)

// claimScript は残高確認・処理中フラグの確認・フラグ設定・残高減算を
// 単一の原子的操作として実行します。近接した二重送信の競合を防ぐため、
// この一連の check-and-set を分割してはいけません。
var claimScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('HGET', key, 'processing') == '1' then
  return 'processing'
end
local tokens = tonumber(redis.call('HGET', key, 'tokens') or '0')
if tokens <= 0 then
  return 'insufficient'
end
redis.call('HSET', key, 'processing', '1')
redis.call('HINCRBY', key, 'tokens', -1)
return 'ok'
`)

// Ledger はトークン台帳への操作を提供します。
type Ledger struct {
	rdb *redis.Client
}

// New は Ledger を作成します。
func New(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// Claim は処理中フラグを立ててトークンを1消費します。
// 残高不足・処理中の場合はそれぞれ対応するエラーを返し、状態は変更しません。
func (l *Ledger) Claim(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	res, err := claimScript.Run(ctx, l.rdb, []string{ledgerKey(userID)}).Text()
	if err != nil {
		return err
	}
	switch res {
	case "ok":
		return nil
	case "insufficient":
		return ErrInsufficientBalance
	case "processing":
		return ErrAlreadyProcessing
	default:
		return fmt.Errorf("unexpected claim result: %s", res)
	}
}

// Release は処理中フラグを解除します。
// ジョブの終端状態到達時、および投入失敗時のロールバックで呼ばれます。
func (l *Ledger) Release(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	return l.rdb.HSet(ctx, ledgerKey(userID), fieldProcessing, "0").Err()
}

// Refund は消費したトークンを1返却します。
// Claim 成功後にジョブ作成へ失敗した場合のロールバックで使用します。
func (l *Ledger) Refund(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	return l.rdb.HIncrBy(ctx, ledgerKey(userID), fieldTokens, 1).Err()
}

// Grant はトークンを追加します。
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64) error {
	if userID == "" {
		return fmt.Errorf("userID is required")
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return l.rdb.HIncrBy(ctx, ledgerKey(userID), fieldTokens, amount).Err()
}

// Balance は現在のトークン残高を返します。未登録ユーザーは残高0です。
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}
	val, err := l.rdb.HGet(ctx, ledgerKey(userID), fieldTokens).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return val, nil
}

// Processing は処理中フラグの現在値を返します。
func (l *Ledger) Processing(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	val, err := l.rdb.HGet(ctx, ledgerKey(userID), fieldProcessing).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return val == "1", nil
}

func ledgerKey(userID string) string {
	return ledgerKeyPrefix + userID
}
