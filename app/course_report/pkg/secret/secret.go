// Package secret 在运行时查找 API 密钥等敏感配置
package secret

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ErrNotFound 密钥不存在
var ErrNotFound = errors.New("secret not found")

// Provider 密钥提供者
type Provider interface {
	Lookup(name string) (string, error)
}

// EnvProvider 从环境变量读取密钥
type EnvProvider struct{}

// NewEnvProvider 创建环境变量提供者；envFile 非空时先加载 .env 文件（不覆盖已存在的变量）
func NewEnvProvider(envFile string) (*EnvProvider, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	return &EnvProvider{}, nil
}

// Lookup 实现 Provider 接口
func (p *EnvProvider) Lookup(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: env %s", ErrNotFound, name)
	}
	return strings.TrimSpace(v), nil
}

// DirProvider 从目录中读取与密钥同名的文件，例如 /run/secrets/OPEN_IA
type DirProvider struct {
	Dir string
}

// Lookup 实现 Provider 接口
func (p *DirProvider) Lookup(name string) (string, error) {
	if p.Dir == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(p.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: file %s", ErrNotFound, name)
		}
		return "", err
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("%w: file %s is empty", ErrNotFound, name)
	}
	return v, nil
}

// Chain 按顺序尝试多个提供者，返回第一个找到的值
type Chain []Provider

// Lookup 实现 Provider 接口；所有提供者都找不到时返回 ErrNotFound
func (c Chain) Lookup(name string) (string, error) {
	for _, p := range c {
		v, err := p.Lookup(name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
