package shorts

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/clip-forge/internal/auth"
	"github.com/yourusername/clip-forge/internal/jobs"
	"github.com/yourusername/clip-forge/internal/ledger"
)

// convertRequest は POST /api/shorts/convert のリクエストボディです。
type convertRequest struct {
	VideoURL string `json:"video_url"`
}

// HandlerOptions はハンドラー共通の設定です。
type HandlerOptions struct {
	PublicBaseURL string // ステータス確認URL組み立て用（空の場合は相対パス）
}

// ConvertHandler は POST /api/shorts/convert のハンドラーを返します。
// 受付に成功すると 202 とジョブID・ステータス確認URLを返します。
func ConvertHandler(svc *Service, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req convertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "video_url を含むJSONボディを送信してください。",
			})
			return
		}

		jobID, err := svc.Submit(c.Request.Context(), SubmitRequest{
			UserID:   auth.UserID(c),
			ChatID:   auth.ChatID(c),
			VideoURL: req.VideoURL,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":          jobID,
			"checkStatusUrl": statusURL(opts.PublicBaseURL, jobID),
		})
	}
}

// StatusHandler は GET /api/shorts/status/:id のハンドラーを返します。
// 保存済みのジョブ記録のみを読み、外部サービスは呼び出しません。
func StatusHandler(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := store.Get(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    CodeInternal,
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    CodeJobNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"status":    record.Status,
			"progress":  record.Progress,
			"createdAt": record.CreatedAt,
			"updatedAt": record.UpdatedAt,
		}
		if record.CompletedAt != nil {
			payload["completedAt"] = record.CompletedAt
		}
		if record.Result != nil {
			payload["result"] = record.Result
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

// BalanceHandler は GET /api/shorts/balance のハンドラーを返します。
func BalanceHandler(ldg *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    CodeUnauthorized,
				"message": "認証情報がありません。",
			})
			return
		}

		tokens, err := ldg.Balance(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    CodeInternal,
				"message": "残高の取得に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"tokens": tokens})
	}
}

// respondWithError は分類済みエラーをHTTP応答へ変換します。
func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    CodeInternal,
			"message": "サーバー内部でエラーが発生しました。",
		})
		return
	}

	status := http.StatusInternalServerError
	switch apiErr.Code {
	case CodeInvalidInput:
		status = http.StatusBadRequest
	case CodeUnauthorized:
		status = http.StatusUnauthorized
	case CodeInsufficientBalance:
		status = http.StatusPaymentRequired
	case CodeAlreadyProcessing:
		status = http.StatusTooManyRequests
	case CodeJobNotFound:
		status = http.StatusNotFound
	}

	c.JSON(status, gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	})
}

func statusURL(base, jobID string) string {
	path := fmt.Sprintf("/api/shorts/status/%s", jobID)
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + path
}
