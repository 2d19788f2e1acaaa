// Package klap は外部クリップ生成プロバイダ（Klap API）のクライアントを提供します。
package klap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultLanguage    = "en"
	defaultMaxDuration = 60
)

// TransientError はリトライ可能な失敗（ネットワークエラー・非2xx応答）を表します。
// ポーリング側は試行回数の範囲内でこのエラーをリトライします。
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("klap: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("klap: request failed: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError は契約違反（JSON以外の応答・解釈不能なボディ）を表します。
// リトライしても解消しないため即時に失敗させます。
type ProtocolError struct {
	ContentType string
	Err         error
}

func (e *ProtocolError) Error() string {
	if e.ContentType != "" {
		return fmt.Sprintf("klap: unexpected content type %q", e.ContentType)
	}
	return fmt.Sprintf("klap: malformed response: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Client は Klap API への呼び出しを行います。
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient は Client を作成します。rps はAPI呼び出しのレート上限です。
func NewClient(baseURL, apiKey string, rps float64) *Client {
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// CreateTask は動画URLを解析タスクとして投入します。
func (c *Client) CreateTask(ctx context.Context, videoURL string) (*Task, error) {
	var task Task
	req := &createTaskRequest{
		SourceVideoURL: videoURL,
		Language:       defaultLanguage,
		MaxDuration:    defaultMaxDuration,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/tasks/video-to-shorts", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask は解析タスクの現在状態を取得します。
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	path := fmt.Sprintf("/tasks/%s", taskID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListClips は解析完了後に生成された候補クリップ群を列挙します。
func (c *Client) ListClips(ctx context.Context, folderID string) ([]Clip, error) {
	var clips []Clip
	path := fmt.Sprintf("/projects/%s", folderID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &clips); err != nil {
		return nil, err
	}
	return clips, nil
}

// CreateExport は候補クリップの高解像度エクスポートを要求します。
func (c *Client) CreateExport(ctx context.Context, folderID, clipID string) (*Export, error) {
	var export Export
	path := fmt.Sprintf("/projects/%s/%s/exports", folderID, clipID)
	if err := c.doJSON(ctx, http.MethodPost, path, struct{}{}, &export); err != nil {
		return nil, err
	}
	return &export, nil
}

// GetExport はエクスポートの現在状態を取得します。
func (c *Client) GetExport(ctx context.Context, folderID, clipID, exportID string) (*Export, error) {
	var export Export
	path := fmt.Sprintf("/projects/%s/%s/exports/%s", folderID, clipID, exportID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &export); err != nil {
		return nil, err
	}
	return &export, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// プロバイダの生エラーボディは呼び出し元へは渡さない
		_, _ = io.Copy(io.Discard, resp.Body)
		return &TransientError{StatusCode: resp.StatusCode}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return &ProtocolError{ContentType: resp.Header.Get("Content-Type")}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProtocolError{Err: err}
	}
	return nil
}
