package shorts

import (
	"testing"

	"github.com/yourusername/clip-forge/internal/jobs"
)

func TestAggregateAllDone(t *testing.T) {
	candidates := []jobs.Candidate{
		{ClipID: "a", ViralityScore: 0.4, ExportStatus: jobs.CandidateDone, DownloadURL: "https://cdn.example.com/a.mp4"},
		{ClipID: "b", ViralityScore: 0.9, ExportStatus: jobs.CandidateDone, DownloadURL: "https://cdn.example.com/b.mp4"},
	}

	status, result, errInfo := Aggregate(candidates)
	if status != jobs.StatusCompleted {
		t.Fatalf("unexpected status: %s", status)
	}
	if errInfo != nil {
		t.Fatalf("unexpected error info: %+v", errInfo)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("expected all candidates preserved, got %d", len(result.Candidates))
	}
	if result.Best == nil || result.Best.ClipID != "b" {
		t.Fatalf("expected best candidate b, got %+v", result.Best)
	}
}

func TestAggregatePartialSuccess(t *testing.T) {
	candidates := []jobs.Candidate{
		{ClipID: "a", ViralityScore: 0.7, ExportStatus: jobs.CandidateDone, DownloadURL: "https://cdn.example.com/a.mp4"},
		{ClipID: "b", ExportStatus: jobs.CandidateFailed, Error: "export failed"},
		{ClipID: "c", ExportStatus: jobs.CandidateProcessing},
	}

	status, result, _ := Aggregate(candidates)
	if status != jobs.StatusCompleted {
		t.Fatalf("expected partial success to complete, got %s", status)
	}
	if result.Best == nil || result.Best.ClipID != "a" {
		t.Fatalf("unexpected best candidate: %+v", result.Best)
	}
	// 呼び出し側が部分成功を判別できるよう、候補ごとの状態は保持される
	if result.Candidates[1].ExportStatus != jobs.CandidateFailed {
		t.Fatalf("expected candidate b to stay failed: %+v", result.Candidates[1])
	}
	if result.Candidates[2].ExportStatus != jobs.CandidateProcessing {
		t.Fatalf("expected candidate c to stay processing: %+v", result.Candidates[2])
	}
}

func TestAggregateNoneDone(t *testing.T) {
	candidates := []jobs.Candidate{
		{ClipID: "a", ExportStatus: jobs.CandidateFailed},
		{ClipID: "b", ExportStatus: jobs.CandidateProcessing},
	}

	status, result, errInfo := Aggregate(candidates)
	if status != jobs.StatusFailed {
		t.Fatalf("unexpected status: %s", status)
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if errInfo == nil || errInfo.Code != CodeExternalTaskFailed {
		t.Fatalf("unexpected error info: %+v", errInfo)
	}
}
