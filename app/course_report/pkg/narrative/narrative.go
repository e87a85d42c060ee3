// Package narrative 调用大模型为课程统计生成分析评语
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/course_report/app/course_report/pkg/config"
	"github.com/iWorld-y/course_report/app/course_report/pkg/logger"
	dm "github.com/iWorld-y/course_report/app/course_report/pkg/model"
	"github.com/iWorld-y/course_report/app/course_report/pkg/secret"
)

// Narrator 评语生成器；任何失败都以固定文本代替，不返回错误
type Narrator interface {
	Generate(ctx context.Context, st *dm.Statistics, course string) string
}

// Disabled 关闭评语生成，报告中不出现评语章节
type Disabled struct{}

// Generate 实现 Narrator 接口
func (Disabled) Generate(context.Context, *dm.Statistics, string) string { return "" }

// Generator 基于 ChatModel 的评语生成器
type Generator struct {
	chatModel  model.BaseChatModel
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	missingKey bool
}

// Option 生成器选项
type Option func(*Generator)

// WithRetry 在 429 时最多重试 n 次，间隔按 base 指数增长
func WithRetry(n int, base time.Duration) Option {
	return func(g *Generator) {
		g.maxRetries = n
		g.baseDelay = base
	}
}

// WithRPM 每分钟请求数上限，0 表示不限
func WithRPM(rpm int) Option {
	return func(g *Generator) {
		if rpm > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
		}
	}
}

// WithTimeout 单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// NewGenerator 使用已有的 ChatModel 创建生成器
func NewGenerator(cm model.BaseChatModel, opts ...Option) *Generator {
	g := &Generator{
		chatModel: cm,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		baseDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New 根据配置创建评语生成器；密钥缺失不是致命错误，生成时返回 FallbackMissingKey
func New(ctx context.Context, cfg config.LLMConfig, secrets secret.Provider) (Narrator, error) {
	switch cfg.Provider {
	case "disabled":
		logger.Log.Info("评语生成已关闭")
		return Disabled{}, nil
	case "", "openai":
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}

	opts := []Option{WithRetry(cfg.MaxRetries, 2*time.Second), WithRPM(cfg.RPM), WithTimeout(cfg.Timeout)}

	apiKey, err := secrets.Lookup(cfg.SecretName)
	if err != nil {
		if !errors.Is(err, secret.ErrNotFound) {
			return nil, fmt.Errorf("lookup secret %s: %w", cfg.SecretName, err)
		}
		logger.Log.Warnf("未找到密钥 '%s'，评语将使用默认文本", cfg.SecretName)
		g := NewGenerator(nil, opts...)
		g.missingKey = true
		return g, nil
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return NewGenerator(chatModel, opts...), nil
}

// Generate 生成评语；失败时返回对应的固定文本
func (g *Generator) Generate(ctx context.Context, st *dm.Statistics, course string) string {
	log := logger.ForCourse(course)
	if g.missingKey || g.chatModel == nil {
		return FallbackMissingKey
	}

	text, err := g.complete(ctx, BuildPrompt(st, course))
	if err != nil {
		fallback := Classify(err)
		log.Errorf("生成评语失败: %v", err)
		return fallback
	}
	return text
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i := 0; i <= g.maxRetries; i++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, err := g.once(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRateLimited(err) || i == g.maxRetries {
			break
		}

		delay := g.baseDelay * time.Duration(1<<i)
		logger.Log.Warnf("请求被限流，%s 后重试 (%d/%d)", delay, i+1, g.maxRetries)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (g *Generator) once(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := []*schema.Message{
		{Role: schema.User, Content: prompt},
	}
	resp, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrUnexpectedResponse
	}
	text := cleanText(resp.Content)
	if text == "" {
		return "", ErrUnexpectedResponse
	}
	return text, nil
}
