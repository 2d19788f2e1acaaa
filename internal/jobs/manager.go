package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/clip-forge/internal/config"
)

const (
	taskTypeConvert = "shorts:convert"
	queueName       = "shorts"

	// キュー投入直後の初期遅延。投入トランザクションの完了を待つための猶予です。
	dispatchInitialDelay = 2 * time.Second
)

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	cfg       *config.Config
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	store     *Store
	processor Processor
	backend   DispatchBackend
	fallback  DispatchBackend
	logger    *log.Logger
}

// TaskPayload は変換ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, store *Store, processor Processor, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if processor == nil {
		return nil, errors.New("processor is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:       cfg,
		client:    client,
		server:    server,
		mux:       mux,
		store:     store,
		processor: processor,
		logger:    logger,
	}

	direct := &directBackend{processor: processor, logger: logger}
	switch cfg.DispatchBackend {
	case "direct":
		manager.backend = direct
	default:
		manager.backend = &asynqBackend{
			client:   client,
			maxRetry: cfg.DispatchMaxRetry,
			delay:    dispatchInitialDelay,
		}
		manager.fallback = direct
	}

	mux.HandleFunc(taskTypeConvert, manager.handleConvertTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Dispatch はジョブをバックグラウンド実行へ引き渡します。
// キュー投入に失敗した場合は直接呼び出しへフォールバックします（ベストエフォート）。
func (m *Manager) Dispatch(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	err := m.backend.Dispatch(ctx, jobID)
	if err == nil {
		return nil
	}
	if m.fallback == nil {
		return err
	}
	if m.logger != nil {
		m.logger.Printf("queue dispatch failed for job %s, falling back to direct invocation: %v", jobID, err)
	}
	return m.fallback.Dispatch(ctx, jobID)
}

// RequeuePending は pending のまま残っているジョブを再投入します。
// ディスパッチ自体が失敗したジョブを起動時に拾い直すためのスイープです。
func (m *Manager) RequeuePending(ctx context.Context, olderThan time.Duration) error {
	ids, err := m.store.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		record, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if record == nil || time.Since(record.CreatedAt) < olderThan {
			continue
		}
		if err := m.Dispatch(ctx, id); err != nil {
			if m.logger != nil {
				m.logger.Printf("requeue failed for job %s: %v", id, err)
			}
			continue
		}
		if m.logger != nil {
			m.logger.Printf("requeued pending job %s", id)
		}
	}
	return nil
}

func (m *Manager) handleConvertTask(ctx context.Context, task *asynq.Task) error {
	jobID, err := payloadJobID(task)
	if err != nil {
		return err
	}
	return m.processor.ProcessJob(ctx, jobID)
}
