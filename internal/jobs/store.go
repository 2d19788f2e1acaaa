package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix  = "job:"
	pendingSetKey = "jobs:pending"
)

// Store はジョブ状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Create は新規ジョブを pending 状態で保存します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("jobID is required")
	}
	now := time.Now().UTC()
	record.Status = StatusPending
	record.CreatedAt = now
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	// pending ジョブは外部からの再取得のために列挙可能にしておく
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(record.JobID), payload, s.ttl)
	pipe.SAdd(ctx, pendingSetKey, record.JobID)
	_, err = pipe.Exec(ctx)
	return err
}

// Get はジョブ情報を取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPending は pending 状態のジョブIDを列挙します。
// ディスパッチに失敗したジョブの再投入スイープが使用します。
func (s *Store) ListPending(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, pendingSetKey).Result()
	if err != nil {
		return nil, err
	}
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record == nil || record.Status != StatusPending {
			// レコードが期限切れ・遷移済みならインデックスから除去
			_ = s.rdb.SRem(ctx, pendingSetKey, id).Err()
			continue
		}
		pending = append(pending, id)
	}
	return pending, nil
}

// MarkProcessing はジョブを processing に遷移させます。
// 既に終端状態の場合は何もしません。
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	err := s.updatePartial(ctx, jobID, func(record *Record) bool {
		if record.Status.Terminal() {
			return false
		}
		record.Status = StatusProcessing
		return true
	})
	if err != nil {
		return err
	}
	return s.rdb.SRem(ctx, pendingSetKey, jobID).Err()
}

// UpdateProgress は進捗を更新します。終端状態のジョブには適用されません。
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return s.updatePartial(ctx, jobID, func(record *Record) bool {
		if record.Status.Terminal() {
			return false
		}
		record.Progress = progress
		return true
	})
}

// MarkCompleted はジョブ完了時の情報を保存します。
// 既に終端状態のジョブに対しては何も変更しません（冪等）。
func (s *Store) MarkCompleted(ctx context.Context, jobID string, result *ConversionResult) error {
	return s.markTerminal(ctx, jobID, func(record *Record) {
		record.Status = StatusCompleted
		record.Progress = 100
		record.Result = result
		record.Error = nil
	})
}

// MarkFailed はジョブ失敗時の情報を保存します。
// 既に終端状態のジョブに対しては何も変更しません（冪等）。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.markTerminal(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		record.Result = nil
		record.Error = errInfo
	})
}

func (s *Store) markTerminal(ctx context.Context, jobID string, mutate func(*Record)) error {
	err := s.updatePartial(ctx, jobID, func(record *Record) bool {
		if record.Status.Terminal() {
			return false
		}
		mutate(record)
		if record.CompletedAt == nil {
			now := time.Now().UTC()
			record.CompletedAt = &now
		}
		return true
	})
	if err != nil {
		return err
	}
	return s.rdb.SRem(ctx, pendingSetKey, jobID).Err()
}

func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record) bool) error {
	key := jobKey(jobID)
	for {
		tx := s.rdb.TxPipeline()
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("job not found: %s", jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if !mutate(&record) {
			return nil
		}
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		tx.Set(ctx, key, payload, s.ttl)
		_, err = tx.Exec(ctx)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
