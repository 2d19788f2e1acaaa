package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const chatLinkKeyPrefix = "chatlink:"

// ChatLinks はチャットIDとユーザーIDの連携情報を参照します。
// 連携の作成（OTPによるアカウント連携）はボット側サービスの責務で、
// ここでは参照と登録のみを提供します。
type ChatLinks struct {
	rdb *redis.Client
}

// NewChatLinks は ChatLinks を作成します。
func NewChatLinks(rdb *redis.Client) *ChatLinks {
	return &ChatLinks{rdb: rdb}
}

// ResolveChatID はチャットIDに連携されたユーザーIDを返します。
func (c *ChatLinks) ResolveChatID(ctx context.Context, chatID string) (string, error) {
	if chatID == "" {
		return "", fmt.Errorf("chatID is required")
	}
	userID, err := c.rdb.Get(ctx, chatLinkKey(chatID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("chat %s is not linked to a user", chatID)
		}
		return "", err
	}
	return userID, nil
}

// Link はチャットIDとユーザーIDの連携を登録します。
func (c *ChatLinks) Link(ctx context.Context, chatID, userID string) error {
	if chatID == "" || userID == "" {
		return fmt.Errorf("chatID and userID are required")
	}
	return c.rdb.Set(ctx, chatLinkKey(chatID), userID, 0).Err()
}

func chatLinkKey(chatID string) string {
	return chatLinkKeyPrefix + chatID
}
