package git

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

const githubNoReplyDomain = "@users.noreply.github.com"

// AvatarURL はコミット作者のメールアドレスからアバター画像のURLを返す。
// GitHub の noreply アドレスは GitHub のアバター、それ以外は Gravatar を使う。
func AvatarURL(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}

	if local, ok := strings.CutSuffix(email, githubNoReplyDomain); ok {
		// "12345+login" 形式はユーザーIDを含む
		if id, _, found := strings.Cut(local, "+"); found && isDigits(id) {
			return fmt.Sprintf("https://avatars.githubusercontent.com/u/%s?v=4", id)
		}
		return fmt.Sprintf("https://github.com/%s.png", local)
	}

	sum := md5.Sum([]byte(email))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=identicon", hex.EncodeToString(sum[:]))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
