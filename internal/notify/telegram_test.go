package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yourusername/clip-forge/internal/jobs"
)

func TestNotifyCompletionSendsMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tg := NewTelegram("bot-token", nil)
	tg.SetBaseURL(server.URL)

	record := &jobs.Record{
		JobID:  "job-1",
		Status: jobs.StatusCompleted,
		Result: &jobs.ConversionResult{
			Candidates: []jobs.Candidate{
				{ClipID: "a", ExportStatus: jobs.CandidateDone, DownloadURL: "https://cdn.example.com/a.mp4"},
			},
			Best: &jobs.Candidate{ClipID: "a", ExportStatus: jobs.CandidateDone, DownloadURL: "https://cdn.example.com/a.mp4"},
		},
	}
	tg.NotifyCompletion(context.Background(), "chat-1", record)

	if gotPath != "/botbot-token/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotBody["chat_id"] != "chat-1" {
		t.Fatalf("unexpected chat_id: %s", gotBody["chat_id"])
	}
	if !strings.Contains(gotBody["text"], "https://cdn.example.com/a.mp4") {
		t.Fatalf("expected download url in message: %s", gotBody["text"])
	}
}

func TestNotifyCompletionFailureText(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tg := NewTelegram("bot-token", nil)
	tg.SetBaseURL(server.URL)

	record := &jobs.Record{
		JobID:  "job-1",
		Status: jobs.StatusFailed,
		Error:  &jobs.ErrorInfo{Code: "EXTERNAL_TASK_FAILED", Message: "動画の解析に失敗しました。"},
	}
	tg.NotifyCompletion(context.Background(), "chat-1", record)

	if !strings.Contains(gotBody["text"], "失敗") {
		t.Fatalf("expected failure message: %s", gotBody["text"])
	}
}
