package klap

// TaskStatus は解析タスクおよびエクスポートの状態を表します。
type TaskStatus string

const (
	StatusProcessing TaskStatus = "processing"
	StatusReady      TaskStatus = "ready"
	StatusError      TaskStatus = "error"
)

// Task は動画解析タスクを表します。
// OutputID は解析完了後に生成クリップ群が格納されるフォルダのIDです。
type Task struct {
	ID       string     `json:"id"`
	Status   TaskStatus `json:"status"`
	OutputID string     `json:"output_id"`
}

// Clip は解析フェーズで特定された候補クリップ1件を表します。
type Clip struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ViralityScore float64 `json:"virality_score"`
	DurationSec   float64 `json:"duration"`
}

// Export は候補クリップの高解像度書き出しを表します。
type Export struct {
	ID       string     `json:"id"`
	Status   TaskStatus `json:"status"`
	SrcURL   string     `json:"src_url"`
	FileSize int64      `json:"file_size"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
}

// createTaskRequest は video-to-shorts タスク作成のリクエストボディです。
type createTaskRequest struct {
	SourceVideoURL string `json:"source_video_url"`
	Language       string `json:"language"`
	MaxDuration    int    `json:"max_duration"`
}
