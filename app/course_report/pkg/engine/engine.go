package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/iWorld-y/course_report/app/course_report/pkg/chart"
	"github.com/iWorld-y/course_report/app/course_report/pkg/config"
	"github.com/iWorld-y/course_report/app/course_report/pkg/export"
	"github.com/iWorld-y/course_report/app/course_report/pkg/loader"
	"github.com/iWorld-y/course_report/app/course_report/pkg/logger"
	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
	"github.com/iWorld-y/course_report/app/course_report/pkg/narrative"
	"github.com/iWorld-y/course_report/app/course_report/pkg/report"
	"github.com/iWorld-y/course_report/app/course_report/pkg/secret"
	"github.com/iWorld-y/course_report/app/course_report/pkg/stats"
)

// ErrNoInput 课程没有可用的成绩数据
var ErrNoInput = errors.New("no grade data")

// Archiver 保存课程运行结果
type Archiver interface {
	SaveCourseRun(ctx context.Context, runID, course string, st *model.Statistics) error
}

// Engine 核心处理引擎
type Engine struct {
	cfg      *config.Config
	store    Archiver
	narrator narrative.Narrator
	charts   *chart.Generator
	report   *report.Builder
}

// Option 引擎选项
type Option func(*Engine)

// WithNarrator 替换评语生成器
func WithNarrator(n narrative.Narrator) Option {
	return func(e *Engine) { e.narrator = n }
}

// NewEngine 创建引擎实例；store 为 nil 时不存档
func NewEngine(ctx context.Context, cfg *config.Config, store Archiver, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		store:  store,
		charts: chart.New(cfg.OutputDir),
		report: report.NewBuilder(cfg.Report),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.narrator == nil {
		secrets, err := NewSecretProvider(cfg.Secrets)
		if err != nil {
			return nil, fmt.Errorf("密钥初始化失败: %w", err)
		}
		n, err := narrative.New(ctx, cfg.LLM, secrets)
		if err != nil {
			return nil, err
		}
		e.narrator = n
	}
	return e, nil
}

// NewSecretProvider 依次从环境变量（可选 .env 文件）与密钥目录查找
func NewSecretProvider(cfg config.SecretsConfig) (secret.Provider, error) {
	env, err := secret.NewEnvProvider(cfg.EnvFile)
	if err != nil {
		return nil, err
	}
	chain := secret.Chain{env}
	if cfg.Dir != "" {
		chain = append(chain, &secret.DirProvider{Dir: cfg.Dir})
	}
	return chain, nil
}

// RunOptions 运行选项
type RunOptions struct {
	Courses          []string // 为空时处理全部课程
	ProgressCallback func(status string, progress int)
}

// CourseResult 单个课程的输出
type CourseResult struct {
	Course string
	PDF    string
	Charts model.ChartPaths
	Stats  *model.Statistics
}

// Run 依次处理课程；单个课程失败只记录日志，全部失败时返回错误
func (e *Engine) Run(ctx context.Context, opts RunOptions) ([]CourseResult, error) {
	courses, err := e.selectCourses(opts.Courses)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger.Log.WithField("run", runID).Infof("开始生成报告，共 %d 个课程", len(courses))
	progress(opts, "starting", 0)

	var results []CourseResult
	for i, course := range courses {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		log := logger.ForCourse(course.Name)
		log.Info("--- 正在处理课程 ---")

		res, err := e.processCourse(ctx, runID, course)
		switch {
		case errors.Is(err, loader.ErrMissingInput), errors.Is(err, ErrNoInput):
			log.Warnf("跳过课程: %v", err)
		case err != nil:
			log.Errorf("处理课程失败: %v", err)
		default:
			results = append(results, *res)
		}
		progress(opts, fmt.Sprintf("processed course: %s", course.Name), (i+1)*100/len(courses))
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no course report generated")
	}
	progress(opts, "completed", 100)
	return results, nil
}

func (e *Engine) selectCourses(names []string) ([]config.CourseConfig, error) {
	if len(e.cfg.Courses) == 0 {
		return nil, fmt.Errorf("no courses configured")
	}
	if len(names) == 0 {
		return e.cfg.Courses, nil
	}
	var out []config.CourseConfig
	for _, name := range names {
		found := false
		for _, c := range e.cfg.Courses {
			if strings.EqualFold(c.Name, name) {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown course: %s", name)
		}
	}
	return out, nil
}

func (e *Engine) processCourse(ctx context.Context, runID string, course config.CourseConfig) (*CourseResult, error) {
	log := logger.ForCourse(course.Name)

	// 1. 读取数据
	grades, absences, err := loader.Load(
		loader.Source{Path: e.cfg.ResolveInput(course.GradesFile), Sheet: course.GradesSheet},
		loader.Source{Path: e.cfg.ResolveInput(course.AbsencesFile), Sheet: course.AbsencesSheet},
	)
	if err != nil {
		return nil, err
	}
	if grades.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInput, course.GradesFile)
	}

	// 2. 统计
	subjects := e.cfg.CourseSubjects(course)
	st := stats.Calculate(grades, subjects, course.Name, stats.Options{
		PassingGrade: e.cfg.PassingGrade,
		TopN:         e.cfg.TopN,
		NameColumn:   e.cfg.NameColumn,
	})
	st.Absences = stats.SummarizeAbsences(absences, e.cfg.NameColumn)
	if !st.HasSubjects() {
		log.Warn("没有任何学科包含成绩")
	}

	// 3. 图表
	charts := e.charts.RenderAll(grades, subjects, st)

	// 4. 评语
	st.Narrative = e.narrator.Generate(ctx, st, course.Name)

	// 5. PDF
	lower := strings.ToLower(course.Name)
	pdfPath := filepath.Join(e.cfg.OutputDir, fmt.Sprintf("relatorio_%s.pdf", lower))
	if err := e.report.Build(course.Name, st, charts, pdfPath); err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	// 6. 导出表格
	if e.cfg.Report.ExportTables {
		e.exportTables(course.Name, st)
	}

	// 7. 存档
	if e.store != nil {
		if err := e.store.SaveCourseRun(ctx, runID, course.Name, st); err != nil {
			log.Errorf("保存运行记录失败: %v", err)
		} else {
			log.Info("运行记录已保存到数据库")
		}
	}

	return &CourseResult{Course: course.Name, PDF: pdfPath, Charts: charts, Stats: st}, nil
}

func (e *Engine) exportTables(course string, st *model.Statistics) {
	log := logger.ForCourse(course)
	lower := strings.ToLower(course)
	dir := e.cfg.OutputDir

	files := []struct {
		path  string
		write func(string) error
	}{
		{filepath.Join(dir, fmt.Sprintf("resumo_disciplinas_%s.csv", lower)), func(p string) error {
			return export.WriteCSV(p, export.SummaryHeaders, export.SummaryRecords(st.Summary), true)
		}},
		{filepath.Join(dir, fmt.Sprintf("alunos_criticos_%s.csv", lower)), func(p string) error {
			return export.WriteCSV(p, export.AtRiskHeaders, export.AtRiskRecords(st.AtRisk), true)
		}},
		{filepath.Join(dir, fmt.Sprintf("estatisticas_%s.xlsx", lower)), func(p string) error {
			return export.WriteWorkbook(p, st)
		}},
	}
	for _, f := range files {
		if err := f.write(f.path); err != nil {
			log.Errorf("导出失败 [%s]: %v", f.path, err)
			continue
		}
		log.Debugf("已导出: %s", f.path)
	}
}

func progress(opts RunOptions, status string, pct int) {
	if opts.ProgressCallback != nil {
		opts.ProgressCallback(status, pct)
	}
}
