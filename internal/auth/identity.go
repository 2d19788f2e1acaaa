// Package auth はリクエストに紐づく利用者情報の取り出しを提供します。
//
// JWTの検証とセッション管理は上流のゲートウェイが担い、本パッケージは
// 検証済みの識別子ヘッダーをコンテキストへ載せ替えるだけです。
// 識別子が無いリクエストは「未認証」として扱い、ここではエラーにしません。
package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID は上流の検証ミドルウェアが設定する解決済みユーザーIDです。
	HeaderUserID = "X-User-Id"
	// HeaderChatID は会話ボット経由のリクエストが持つチャットIDです。
	HeaderChatID = "X-Chat-Id"

	// ContextUserKey は、ハンドラー間でユーザーIDを共有するためのキーです。
	ContextUserKey = "auth.user"
	// ContextChatKey は、ハンドラー間でチャットIDを共有するためのキーです。
	ContextChatKey = "auth.chat"
)

// Identity は検証済みヘッダーをコンテキストへ移すミドルウェアを返します。
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(HeaderUserID)); userID != "" {
			c.Set(ContextUserKey, userID)
		}
		if chatID := strings.TrimSpace(c.GetHeader(HeaderChatID)); chatID != "" {
			c.Set(ContextChatKey, chatID)
		}
		c.Next()
	}
}

// UserID はコンテキストから解決済みユーザーIDを取り出します。未認証なら空文字です。
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}

// ChatID はコンテキストからチャットIDを取り出します。
func ChatID(c *gin.Context) string {
	return c.GetString(ContextChatKey)
}
