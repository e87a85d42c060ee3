package narrative

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	goopenai "github.com/meguminnnnnnnnn/go-openai"
)

// 生成失败时写入报告的固定文本
const (
	FallbackMissingKey   = "A análise por IA não pôde ser gerada pois a chave de API não foi encontrada."
	FallbackUnauthorized = "A análise por IA não pôde ser gerada. A chave de API da OpenAI é inválida ou expirou."
	FallbackForbidden    = "A análise por IA não pôde ser gerada devido a um problema de permissão."
	FallbackHTTP         = "Erro na comunicação com a IA para gerar o comentário."
	FallbackNetwork      = "Erro de comunicação com a IA para gerar o comentário."
	FallbackUnexpected   = "Análise da IA indisponível (resposta inesperada da API)."
	FallbackProcessing   = "Erro ao processar o comentário da IA."
)

// ErrUnexpectedResponse 响应中没有可用的文本
var ErrUnexpectedResponse = errors.New("unexpected response")

// StatusCode 从 go-openai 的错误类型中提取 HTTP 状态码，没有时返回 0
func StatusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Classify 将错误映射为报告中的固定文本
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnexpectedResponse) {
		return FallbackUnexpected
	}
	switch code := StatusCode(err); {
	case code == http.StatusUnauthorized:
		return FallbackUnauthorized
	case code == http.StatusForbidden:
		return FallbackForbidden
	case code >= 400:
		return FallbackHTTP
	}
	if isNetworkError(err) {
		return FallbackNetwork
	}
	if strings.Contains(strings.ToLower(err.Error()), "empty choices") {
		return FallbackUnexpected
	}
	return FallbackProcessing
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"dial tcp", "connection refused", "connection reset", "no such host", "timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func isRateLimited(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}
