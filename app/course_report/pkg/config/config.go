package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

// EnvPrefix 环境变量前缀，例如 COURSE_REPORT_OUTPUT_DIR
const EnvPrefix = "COURSE_REPORT"

// Config 项目配置结构体
type Config struct {
	InputDir     string                     `yaml:"input_dir"`
	OutputDir    string                     `yaml:"output_dir" validate:"required"`
	PassingGrade float64                    `yaml:"passing_grade" validate:"gt=0"`
	TopN         int                        `yaml:"top_n" validate:"gt=0"`
	NameColumn   string                     `yaml:"name_column" validate:"required"`
	SubjectSets  map[string][]model.Subject `yaml:"subject_sets" validate:"dive,dive"`
	Courses      []CourseConfig             `yaml:"courses" validate:"required,min=1,dive"`
	Report       ReportConfig               `yaml:"report"`
	LLM          LLMConfig                  `yaml:"llm"`
	Secrets      SecretsConfig              `yaml:"secrets"`
	Log          LogConfig                  `yaml:"log"`
	DB           DBConfig                   `yaml:"db"`
}

// CourseConfig 单个课程的输入配置，*_sheet 只对 XLSX 文件生效
type CourseConfig struct {
	Name          string          `yaml:"name" validate:"required"`
	GradesFile    string          `yaml:"grades_file" validate:"required"`
	GradesSheet   string          `yaml:"grades_sheet"`
	AbsencesFile  string          `yaml:"absences_file" validate:"required"`
	AbsencesSheet string          `yaml:"absences_sheet"`
	SubjectSets   []string        `yaml:"subject_sets"`
	Subjects      []model.Subject `yaml:"subjects" validate:"dive"`
}

// ReportConfig PDF 版式配置
type ReportConfig struct {
	Title        string   `yaml:"title"`
	CoursePrefix string   `yaml:"course_prefix"`
	HeaderLines  []string `yaml:"header_lines"`
	Footer       string   `yaml:"footer"`
	LogoPath     string   `yaml:"logo_path"`
	ExportTables bool     `yaml:"export_tables"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	Provider   string        `yaml:"provider" validate:"oneof=openai disabled"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	SecretName string        `yaml:"secret_name"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
	RPM        int           `yaml:"rpm" validate:"gte=0"`
}

// SecretsConfig 密钥查找配置
type SecretsConfig struct {
	EnvFile string `yaml:"env_file"`
	Dir     string `yaml:"dir"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DBConfig 数据库相关配置，Host 为空时不启用
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// EnvOverrides 可通过环境变量覆盖的配置项
type EnvOverrides struct {
	InputDir   string `envconfig:"INPUT_DIR"`
	OutputDir  string `envconfig:"OUTPUT_DIR"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL"`
	LLMModel   string `envconfig:"LLM_MODEL"`
	DBHost     string `envconfig:"DB_HOST"`
	DBPassword string `envconfig:"DB_PASSWORD"`
}

// LoadConfig 从指定路径加载配置，随后应用环境变量覆盖、默认值并校验
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	cfg.applyOverrides(env)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyOverrides(env EnvOverrides) {
	if env.InputDir != "" {
		c.InputDir = env.InputDir
	}
	if env.OutputDir != "" {
		c.OutputDir = env.OutputDir
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.LLMBaseURL != "" {
		c.LLM.BaseURL = env.LLMBaseURL
	}
	if env.LLMModel != "" {
		c.LLM.Model = env.LLMModel
	}
	if env.DBHost != "" {
		c.DB.Host = env.DBHost
	}
	if env.DBPassword != "" {
		c.DB.Password = env.DBPassword
	}
}

func (c *Config) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.PassingGrade == 0 {
		c.PassingGrade = 12.0
	}
	if c.TopN == 0 {
		c.TopN = 10
	}
	if c.NameColumn == "" {
		c.NameColumn = "nome"
	}
	if c.Report.Title == "" {
		c.Report.Title = "RELATÓRIO DE ACOMPANHAMENTO ACADÊMICO"
	}
	if c.Report.CoursePrefix == "" {
		c.Report.CoursePrefix = "Curso Técnico em"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.SecretName == "" {
		c.LLM.SecretName = "OPEN_IA"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
}

// Validate 校验配置，并检查课程引用的学科集合是否存在
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Courses))
	for _, course := range c.Courses {
		if seen[course.Name] {
			return fmt.Errorf("duplicate course %q", course.Name)
		}
		seen[course.Name] = true
		for _, set := range course.SubjectSets {
			if _, ok := c.SubjectSets[set]; !ok {
				return fmt.Errorf("course %q references unknown subject set %q", course.Name, set)
			}
		}
		if len(c.CourseSubjects(course)) == 0 {
			return fmt.Errorf("course %q has no subjects", course.Name)
		}
	}
	return nil
}

// CourseSubjects 按顺序合并课程的学科字典：先引用的学科集合，再课程自身的学科，重复代码只保留第一次出现
func (c *Config) CourseSubjects(course CourseConfig) []model.Subject {
	var subjects []model.Subject
	seen := make(map[string]bool)
	add := func(list []model.Subject) {
		for _, s := range list {
			if seen[s.Code] {
				continue
			}
			seen[s.Code] = true
			subjects = append(subjects, s)
		}
	}
	for _, set := range course.SubjectSets {
		add(c.SubjectSets[set])
	}
	add(course.Subjects)
	return subjects
}

// ResolveInput 相对路径基于 InputDir 解析
func (c *Config) ResolveInput(path string) string {
	if path == "" || filepath.IsAbs(path) || c.InputDir == "" {
		return path
	}
	return filepath.Join(c.InputDir, path)
}
