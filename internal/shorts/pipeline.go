package shorts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/clip-forge/internal/jobs"
	"github.com/yourusername/clip-forge/internal/klap"
)

// エクスポートのファンアウト同時実行数の上限。
// プロバイダ側のレート制限と自プロセスの負荷を抑えるための値で、
// 候補数がこの値以下なら全候補が同時に進行します。
const exportConcurrency = 8

// ProcessJob はジョブIDに対応する変換処理を実行します。
// Asynq ワーカーまたは直接ディスパッチから呼ばれます。
//
// 処理はフェーズ順に進みます:
//  1. 解析タスクの投入とポーリング（長い予算・粗い間隔）
//  2. 候補クリップごとのエクスポート投入とポーリング（短い予算・細かい間隔、並行）
//  3. 集約と終端状態の保存
//
// ドメイン上の失敗はジョブ記録に書き込んで nil を返します。
// ストア障害などの基盤エラーのみ error として返し、キュー側のリトライに委ねます。
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	record, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if record.Status.Terminal() {
		// at-least-once 配送による再実行。結果は確定済みなので何もしない。
		return nil
	}

	if err := s.store.MarkProcessing(ctx, jobID); err != nil {
		return err
	}

	candidates, procErr := s.runConversion(ctx, jobID, record.VideoURL)
	if procErr != nil {
		return s.finishFailed(ctx, record, procErr)
	}

	status, result, errInfo := Aggregate(candidates)
	if status == jobs.StatusFailed {
		if err := s.store.MarkFailed(ctx, jobID, errInfo); err != nil {
			return err
		}
		s.finalize(ctx, record)
		return nil
	}

	if err := s.store.MarkCompleted(ctx, jobID, result); err != nil {
		return err
	}
	s.finalize(ctx, record)
	return nil
}

// runConversion は解析フェーズとエクスポートフェーズを順に実行します。
// 返るエラーは分類済みの *Error です。
func (s *Service) runConversion(ctx context.Context, jobID, videoURL string) ([]jobs.Candidate, error) {
	task, err := s.createTask(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	s.reportProgress(ctx, jobID, 10)

	task, err = s.awaitTask(ctx, jobID, task.ID)
	if err != nil {
		return nil, err
	}
	s.reportProgress(ctx, jobID, 50)

	clips, err := s.listClips(ctx, task.OutputID)
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, newError(CodeExternalTaskFailed, "解析結果に候補クリップがありません。", nil)
	}
	s.reportProgress(ctx, jobID, 60)

	candidates := s.exportAll(ctx, task.OutputID, clips)
	s.reportProgress(ctx, jobID, 90)
	return candidates, nil
}

// createTask は解析タスクを投入します。一時的な失敗は少数回だけリトライします。
func (s *Service) createTask(ctx context.Context, videoURL string) (*klap.Task, error) {
	const createAttempts = 3
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		task, err := s.converter.CreateTask(ctx, videoURL)
		if err == nil {
			return task, nil
		}
		if isProtocolViolation(err) {
			return nil, newError(CodeProtocolViolation, "変換サービスの応答形式が不正です。", err)
		}
		lastErr = err
		if attempt < createAttempts-1 {
			if err := s.sleep(ctx, s.opts.TaskPoll.Interval); err != nil {
				return nil, newError(CodeInternal, "処理が中断されました。", err)
			}
		}
	}
	return nil, newError(CodeExternalTaskFailed, "解析タスクの投入に失敗しました。", lastErr)
}

// awaitTask は解析タスクが ready になるまでポーリングします。
// 予算超過はタイムアウト失敗であり、成功扱いにはなりません。
func (s *Service) awaitTask(ctx context.Context, jobID, taskID string) (*klap.Task, error) {
	for attempt := 0; attempt < s.opts.TaskPoll.Attempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.opts.TaskPoll.Interval); err != nil {
				return nil, newError(CodeInternal, "処理が中断されました。", err)
			}
		}

		task, err := s.converter.GetTask(ctx, taskID)
		if err != nil {
			if isProtocolViolation(err) {
				return nil, newError(CodeProtocolViolation, "変換サービスの応答形式が不正です。", err)
			}
			// 一時的な失敗は予算の範囲内でリトライする
			continue
		}

		switch task.Status {
		case klap.StatusReady:
			return task, nil
		case klap.StatusError:
			return nil, newError(CodeExternalTaskFailed, "動画の解析に失敗しました。", nil)
		}

		// 解析中のタスクポーリングを進捗へ粗く反映する（10〜50%）
		s.reportProgress(ctx, jobID, 10+40*attempt/s.opts.TaskPoll.Attempts)
	}
	return nil, newError(CodeExternalTaskFailed, "動画の解析がタイムアウトしました。", nil)
}

func (s *Service) listClips(ctx context.Context, folderID string) ([]klap.Clip, error) {
	const listAttempts = 3
	var lastErr error
	for attempt := 0; attempt < listAttempts; attempt++ {
		clips, err := s.converter.ListClips(ctx, folderID)
		if err == nil {
			return clips, nil
		}
		if isProtocolViolation(err) {
			return nil, newError(CodeProtocolViolation, "変換サービスの応答形式が不正です。", err)
		}
		lastErr = err
		if attempt < listAttempts-1 {
			if err := s.sleep(ctx, s.opts.ExportPoll.Interval); err != nil {
				return nil, newError(CodeInternal, "処理が中断されました。", err)
			}
		}
	}
	return nil, newError(CodeExternalTaskFailed, "候補クリップの取得に失敗しました。", lastErr)
}

// exportAll は全候補のエクスポートを並行して実行します。
// 候補単位の失敗は結果に記録するだけで、他の候補には波及させません。
func (s *Service) exportAll(ctx context.Context, folderID string, clips []klap.Clip) []jobs.Candidate {
	candidates := make([]jobs.Candidate, len(clips))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for i := range clips {
		i := i
		g.Go(func() error {
			candidates[i] = s.exportClip(ctx, folderID, clips[i])
			return nil
		})
	}
	_ = g.Wait()

	return candidates
}

// exportClip は候補クリップ1件のエクスポートを投入し、完了までポーリングします。
func (s *Service) exportClip(ctx context.Context, folderID string, clip klap.Clip) jobs.Candidate {
	candidate := jobs.Candidate{
		ClipID:        clip.ID,
		Name:          clip.Name,
		ViralityScore: clip.ViralityScore,
	}

	export, err := s.converter.CreateExport(ctx, folderID, clip.ID)
	if err != nil {
		// 投入自体の失敗はこの候補だけを failed にして継続する
		candidate.ExportStatus = jobs.CandidateFailed
		candidate.Error = "エクスポートの投入に失敗しました。"
		return candidate
	}

	for attempt := 0; attempt < s.opts.ExportPoll.Attempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.opts.ExportPoll.Interval); err != nil {
				break
			}
		}

		current, err := s.converter.GetExport(ctx, folderID, clip.ID, export.ID)
		if err != nil {
			if isProtocolViolation(err) {
				candidate.ExportStatus = jobs.CandidateFailed
				candidate.Error = "変換サービスの応答形式が不正です。"
				return candidate
			}
			continue
		}

		switch current.Status {
		case klap.StatusReady:
			candidate.ExportStatus = jobs.CandidateDone
			candidate.DownloadURL = current.SrcURL
			candidate.FileSize = current.FileSize
			candidate.Width = current.Width
			candidate.Height = current.Height
			return candidate
		case klap.StatusError:
			candidate.ExportStatus = jobs.CandidateFailed
			candidate.Error = "エクスポートに失敗しました。"
			return candidate
		}
	}

	// 予算超過はフェーズ1より緩い扱いで、未完了（processing）のまま残す
	candidate.ExportStatus = jobs.CandidateProcessing
	return candidate
}

// finishFailed はジョブを失敗として確定させます。
func (s *Service) finishFailed(ctx context.Context, record *jobs.Record, procErr error) error {
	errInfo := &jobs.ErrorInfo{Code: CodeInternal, Message: "サーバー内部でエラーが発生しました。"}
	var apiErr *Error
	if errors.As(procErr, &apiErr) {
		errInfo = &jobs.ErrorInfo{Code: apiErr.Code, Message: apiErr.Message}
	}
	if err := s.store.MarkFailed(ctx, record.JobID, errInfo); err != nil {
		return err
	}
	s.finalize(ctx, record)
	return nil
}

// finalize は終端状態到達後の後始末（処理中フラグ解除・通知）を行います。
func (s *Service) finalize(ctx context.Context, record *jobs.Record) {
	if err := s.ledger.Release(ctx, record.UserID); err != nil && s.logger != nil {
		s.logger.Printf("failed to release processing flag for user %s: %v", record.UserID, err)
	}
	if s.notifier != nil && record.ChatID != "" {
		if current, err := s.store.Get(ctx, record.JobID); err == nil && current != nil {
			s.notifier.NotifyCompletion(ctx, record.ChatID, current)
		}
	}
}

func (s *Service) reportProgress(ctx context.Context, jobID string, percent int) {
	if err := s.store.UpdateProgress(ctx, jobID, percent); err != nil && s.logger != nil {
		s.logger.Printf("failed to update progress job=%s: %v", jobID, err)
	}
}

func isProtocolViolation(err error) bool {
	var protoErr *klap.ProtocolError
	return errors.As(err, &protoErr)
}
