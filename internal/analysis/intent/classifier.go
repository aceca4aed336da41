package intent

import (
	"strings"

	"github.com/zhouzirui/commerce-router/internal/model/service"
)

// General 表示消息不属于任何已注册的商务服务。
const General = "general"

type bucket struct {
	tag      string
	keywords []string
}

// Classifier 通过关键词子串匹配把消息映射到服务标签。
// 按注册表顺序扫描，第一个命中的服务胜出。
type Classifier struct {
	buckets []bucket
}

// NewClassifier 根据服务列表构建分类器，关键词在此统一转为小写。
func NewClassifier(services []service.Descriptor) *Classifier {
	c := &Classifier{buckets: make([]bucket, 0, len(services))}
	for _, d := range services {
		b := bucket{tag: d.Tag, keywords: make([]string, 0, len(d.Keywords))}
		for _, kw := range d.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				b.keywords = append(b.keywords, kw)
			}
		}
		c.buckets = append(c.buckets, b)
	}
	return c
}

// Classify 返回命中的服务标签，未命中时返回 General。
func (c *Classifier) Classify(message string) string {
	tag, _ := c.Match(message)
	return tag
}

// Match 与 Classify 相同，额外返回命中的关键词，便于日志排查。
func (c *Classifier) Match(message string) (tag, keyword string) {
	normalized := strings.ToLower(message)
	if strings.TrimSpace(normalized) == "" {
		return General, ""
	}
	for _, b := range c.buckets {
		for _, kw := range b.keywords {
			if strings.Contains(normalized, kw) {
				return b.tag, kw
			}
		}
	}
	return General, ""
}
