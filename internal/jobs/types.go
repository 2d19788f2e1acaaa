package jobs

import "time"

// Status はジョブの実行状態を表します。
// 遷移は pending → processing → {completed, failed} の一方向のみです。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CandidateStatus は候補クリップごとのエクスポート状態を表します。
type CandidateStatus string

const (
	CandidateDone       CandidateStatus = "done"
	CandidateFailed     CandidateStatus = "failed"
	CandidateProcessing CandidateStatus = "processing"
)

// Candidate は解析フェーズで特定された候補クリップ1件の最終状態です。
type Candidate struct {
	ClipID        string          `json:"clipId"`
	Name          string          `json:"name,omitempty"`
	ViralityScore float64         `json:"viralityScore"`
	ExportStatus  CandidateStatus `json:"exportStatus"`
	DownloadURL   string          `json:"downloadUrl,omitempty"`
	FileSize      int64           `json:"fileSize,omitempty"`
	Width         int             `json:"width,omitempty"`
	Height        int             `json:"height,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// ConversionResult はジョブ完了時の成果を表します。
// 全候補を per-candidate ステータス付きで保持し、Best は
// エクスポート完了した候補のうちバイラリティスコア最大のものを指します。
type ConversionResult struct {
	Candidates []Candidate `json:"candidates"`
	Best       *Candidate  `json:"best,omitempty"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID       string            `json:"jobId"`
	UserID      string            `json:"userId"`
	VideoURL    string            `json:"videoUrl"`
	ChatID      string            `json:"chatId,omitempty"`
	Status      Status            `json:"status"`
	Progress    int               `json:"progress"`
	Result      *ConversionResult `json:"result,omitempty"`
	Error       *ErrorInfo        `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}
