// Package notify はジョブ終端時のチャット通知を提供します。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/yourusername/clip-forge/internal/jobs"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram は Telegram Bot API の sendMessage で完了通知を送ります。
// 会話ボットのコマンド処理は別サービスの責務で、ここでは通知の送出のみを行います。
type Telegram struct {
	token   string
	baseURL string
	httpc   *http.Client
	logger  *log.Logger
}

// NewTelegram は Telegram 通知クライアントを作成します。
func NewTelegram(token string, logger *log.Logger) *Telegram {
	return &Telegram{
		token:   token,
		baseURL: telegramAPIBase,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// SetBaseURL はテスト用にAPIのベースURLを差し替えます。
func (t *Telegram) SetBaseURL(baseURL string) {
	t.baseURL = baseURL
}

// NotifyCompletion はジョブの結果をチャットへ通知します。
// 通知はベストエフォートであり、失敗してもログに残すだけです。
func (t *Telegram) NotifyCompletion(ctx context.Context, chatID string, record *jobs.Record) {
	if record == nil || chatID == "" {
		return
	}

	text := completionText(record)
	payload, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		if t.logger != nil {
			t.logger.Printf("telegram notify failed for chat %s: %v", chatID, err)
		}
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && t.logger != nil {
		t.logger.Printf("telegram notify returned status %d for chat %s", resp.StatusCode, chatID)
	}
}

func completionText(record *jobs.Record) string {
	if record.Status == jobs.StatusCompleted && record.Result != nil {
		done := 0
		for _, cand := range record.Result.Candidates {
			if cand.ExportStatus == jobs.CandidateDone {
				done++
			}
		}
		if record.Result.Best != nil && record.Result.Best.DownloadURL != "" {
			return fmt.Sprintf("ショート動画の生成が完了しました（%d件）。ダウンロード: %s", done, record.Result.Best.DownloadURL)
		}
		return fmt.Sprintf("ショート動画の生成が完了しました（%d件）。", done)
	}
	if record.Error != nil {
		return fmt.Sprintf("ショート動画の生成に失敗しました: %s", record.Error.Message)
	}
	return "ショート動画の生成が終了しました。"
}
