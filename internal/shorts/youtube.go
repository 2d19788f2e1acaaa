package shorts

import (
	"regexp"
	"strings"
)

// 対応プロバイダはYouTubeのみ。watch / shorts / live / youtu.be の各URL形状を受け付けます。
var youtubeURLPattern = regexp.MustCompile(
	`^(https?://)?((www\.|m\.)?youtube\.com/(watch\?v=|shorts/|live/)|youtu\.be/)[A-Za-z0-9_-]{4,}([?&][^\s]*)?$`,
)

// ValidateVideoURL は動画URLが対応プロバイダの形式かどうかを検証します。
func ValidateVideoURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return newError(CodeInvalidInput, "動画URLを指定してください。", nil)
	}
	if !youtubeURLPattern.MatchString(trimmed) {
		return newError(CodeInvalidInput, "対応していない動画URLです。YouTubeのURLを指定してください。", nil)
	}
	return nil
}
