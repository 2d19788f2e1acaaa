package shorts

import (
	"fmt"

	"github.com/yourusername/clip-forge/internal/jobs"
)

// Aggregate はファンアウト結果を単一のジョブ結果へ集約します。
//
//   - 1件以上のエクスポートが完了していれば completed（部分成功を含む）。
//     候補ごとの状態は結果に保持され、呼び出し側が完全成功と部分成功を
//     区別できます。
//   - 完了が0件なら failed。
//
// Best は完了した候補のうちバイラリティスコアが最大のものです。
func Aggregate(candidates []jobs.Candidate) (jobs.Status, *jobs.ConversionResult, *jobs.ErrorInfo) {
	done := 0
	failed := 0
	var best *jobs.Candidate
	for i := range candidates {
		switch candidates[i].ExportStatus {
		case jobs.CandidateDone:
			done++
			if best == nil || candidates[i].ViralityScore > best.ViralityScore {
				best = &candidates[i]
			}
		case jobs.CandidateFailed:
			failed++
		}
	}

	if done == 0 {
		return jobs.StatusFailed, nil, &jobs.ErrorInfo{
			Code:    CodeExternalTaskFailed,
			Message: fmt.Sprintf("クリップの書き出しに失敗しました（候補 %d 件中 完了 0 件）。", len(candidates)),
		}
	}

	result := &jobs.ConversionResult{
		Candidates: candidates,
	}
	if best != nil {
		b := *best
		result.Best = &b
	}
	return jobs.StatusCompleted, result, nil
}
