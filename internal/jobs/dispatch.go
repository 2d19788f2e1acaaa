package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"
)

// Processor はジョブ本体の処理を実行できるサービスが実装します。
type Processor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

// DispatchBackend はジョブIDをバックグラウンド実行へ引き渡す手段を抽象化します。
// キュー経由（at-least-once）と直接呼び出し（at-most-once）を
// 同一インターフェースの別実装として扱います。
type DispatchBackend interface {
	Dispatch(ctx context.Context, jobID string) error
}

// asynqBackend は Asynq キューへタスクを投入するバックエンドです。
type asynqBackend struct {
	client   *asynq.Client
	maxRetry int
	delay    time.Duration
}

func (b *asynqBackend) Dispatch(ctx context.Context, jobID string) error {
	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeConvert, body, asynq.Queue(queueName))
	_, err = b.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(b.maxRetry),
		asynq.ProcessIn(b.delay),
	)
	return err
}

// directBackend はキューを介さずワーカー処理を直接起動するバックエンドです。
// リトライは行いません。
type directBackend struct {
	processor Processor
	logger    *log.Logger
}

func (b *directBackend) Dispatch(ctx context.Context, jobID string) error {
	go func() {
		// 投入元リクエストのキャンセルに巻き込まれないよう独立したコンテキストで実行する
		if err := b.processor.ProcessJob(context.Background(), jobID); err != nil {
			if b.logger != nil {
				b.logger.Printf("direct dispatch: job %s finished with error: %v", jobID, err)
			}
		}
	}()
	return nil
}

// MemoryBackend はテスト用のインメモリバックエンドです。
// 投入されたジョブIDを記録し、Err が設定されていればそれを返します。
type MemoryBackend struct {
	mu     sync.Mutex
	jobIDs []string

	Err error
}

// Dispatch はジョブIDを記録します。
func (b *MemoryBackend) Dispatch(ctx context.Context, jobID string) error {
	if b.Err != nil {
		return b.Err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobIDs = append(b.jobIDs, jobID)
	return nil
}

// Dispatched は記録済みのジョブIDを返します。
func (b *MemoryBackend) Dispatched() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.jobIDs))
	copy(out, b.jobIDs)
	return out
}

var _ DispatchBackend = (*MemoryBackend)(nil)

func payloadJobID(task *asynq.Task) (string, error) {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return "", err
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("missing jobId in payload")
	}
	return payload.JobID, nil
}
