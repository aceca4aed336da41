package utils

import (
	"strings"

	"github.com/google/uuid"
)

// anonymousNamespace scopes pseudonymous user ids so they never collide with
// ids issued elsewhere.
var anonymousNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("commerce-router/anonymous-user"))

// ResolveUserID 返回调用方提供的用户ID；为空时根据消息内容生成稳定的匿名ID
func ResolveUserID(userID, message string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return id
	}
	return "anon-" + uuid.NewSHA1(anonymousNamespace, []byte(message)).String()
}
