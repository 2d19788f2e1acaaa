// Package shorts は動画からショートクリップを生成するジョブパイプラインを提供します。
package shorts

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/clip-forge/internal/jobs"
	"github.com/yourusername/clip-forge/internal/klap"
	"github.com/yourusername/clip-forge/internal/ledger"
)

// JobScheduler はジョブを非同期実行へ引き渡すためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// UserResolver はチャットIDからユーザーIDを解決します。
// アカウント連携サービス（本パッケージの対象外）が実装します。
type UserResolver interface {
	ResolveChatID(ctx context.Context, chatID string) (string, error)
}

// Notifier はジョブ終端時の通知を送信します。
type Notifier interface {
	NotifyCompletion(ctx context.Context, chatID string, record *jobs.Record)
}

// ConversionClient は外部変換プロバイダへの呼び出しを抽象化します。
type ConversionClient interface {
	CreateTask(ctx context.Context, videoURL string) (*klap.Task, error)
	GetTask(ctx context.Context, taskID string) (*klap.Task, error)
	ListClips(ctx context.Context, folderID string) ([]klap.Clip, error)
	CreateExport(ctx context.Context, folderID, clipID string) (*klap.Export, error)
	GetExport(ctx context.Context, folderID, clipID, exportID string) (*klap.Export, error)
}

// PollPolicy はポーリングの試行回数と間隔を保持します。
type PollPolicy struct {
	Attempts int
	Interval time.Duration
}

// Options は Service の調整可能な設定です。
type Options struct {
	TaskPoll   PollPolicy // 解析フェーズ: 長い予算・粗い間隔
	ExportPoll PollPolicy // エクスポートフェーズ: 短い予算・細かい間隔
}

// Service はジョブの受付とワーカー処理を担います。
type Service struct {
	store     *jobs.Store
	ledger    *ledger.Ledger
	converter ConversionClient
	scheduler JobScheduler
	resolver  UserResolver
	notifier  Notifier
	opts      Options
	logger    *log.Logger

	// テストで決定論的に差し替えるためのスリープ関数
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService は Service を作成します。resolver と notifier は nil を許容します。
func NewService(store *jobs.Store, ldg *ledger.Ledger, converter ConversionClient, opts Options, logger *log.Logger) *Service {
	if opts.TaskPoll.Attempts <= 0 {
		opts.TaskPoll = PollPolicy{Attempts: 90, Interval: 10 * time.Second}
	}
	if opts.ExportPoll.Attempts <= 0 {
		opts.ExportPoll = PollPolicy{Attempts: 30, Interval: 5 * time.Second}
	}
	return &Service{
		store:     store,
		ledger:    ldg,
		converter: converter,
		opts:      opts,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// SetScheduler はジョブ投入先を設定します。
func (s *Service) SetScheduler(scheduler JobScheduler) {
	s.scheduler = scheduler
}

// SetResolver はチャットID解決サービスを設定します。
func (s *Service) SetResolver(resolver UserResolver) {
	s.resolver = resolver
}

// SetNotifier は完了通知先を設定します。
func (s *Service) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SubmitRequest はジョブ投入リクエストです。
// UserID が空の場合は ChatID からの解決を試みます。
type SubmitRequest struct {
	UserID   string
	ChatID   string
	VideoURL string
}

// Submit は変換ジョブを受け付けます。
// 検証 → ユーザー解決 → 台帳の原子的な確保 → ジョブ作成 → 非同期投入 の順で処理し、
// 確保後に失敗した場合は台帳をロールバックします。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := ValidateVideoURL(req.VideoURL); err != nil {
		return "", err
	}

	userID := req.UserID
	if userID == "" && req.ChatID != "" && s.resolver != nil {
		resolved, err := s.resolver.ResolveChatID(ctx, req.ChatID)
		if err != nil {
			return "", newError(CodeUnauthorized, "チャットに紐づくユーザーが見つかりません。", err)
		}
		userID = resolved
	}
	if userID == "" {
		return "", newError(CodeUnauthorized, "認証情報がありません。", nil)
	}

	if err := s.ledger.Claim(ctx, userID); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return "", newError(CodeInsufficientBalance, "トークン残高が不足しています。", err)
		case errors.Is(err, ledger.ErrAlreadyProcessing):
			return "", newError(CodeAlreadyProcessing, "処理中のジョブがあります。完了までお待ちください。", err)
		default:
			return "", newError(CodeInternal, "残高の確認に失敗しました。", err)
		}
	}

	jobID := uuid.NewString()
	record := &jobs.Record{
		JobID:    jobID,
		UserID:   userID,
		VideoURL: req.VideoURL,
		ChatID:   req.ChatID,
	}
	if err := s.store.Create(ctx, record); err != nil {
		// 確保済みのフラグとトークンを戻してユーザーを閉め出さない
		s.rollbackClaim(ctx, userID)
		return "", newError(CodeInternal, "ジョブの作成に失敗しました。", err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, jobID); err != nil {
			// ジョブは pending のまま残り、起動時スイープの再投入対象になる
			if s.logger != nil {
				s.logger.Printf("dispatch failed for job %s (left pending): %v", jobID, err)
			}
		}
	}

	return jobID, nil
}

func (s *Service) rollbackClaim(ctx context.Context, userID string) {
	if err := s.ledger.Release(ctx, userID); err != nil && s.logger != nil {
		s.logger.Printf("failed to release processing flag for user %s: %v", userID, err)
	}
	if err := s.ledger.Refund(ctx, userID); err != nil && s.logger != nil {
		s.logger.Printf("failed to refund token for user %s: %v", userID, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
