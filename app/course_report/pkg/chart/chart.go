// Package chart 使用 gonum/plot 渲染报告中的 PNG 图表
package chart

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/iWorld-y/course_report/app/course_report/pkg/logger"
	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
	"github.com/iWorld-y/course_report/app/course_report/pkg/stats"
)

var (
	colorBar       = color.RGBA{R: 76, G: 114, B: 176, A: 255}
	colorBarEdge   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorDensity   = color.RGBA{R: 31, G: 58, B: 147, A: 255}
	colorIndianRed = color.RGBA{R: 205, G: 92, B: 92, A: 255}
	colorGrid      = color.RGBA{R: 160, G: 160, B: 160, A: 150}
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Generator 图表生成器
type Generator struct {
	OutputDir string
	Width     vg.Length
	Height    vg.Length
}

// New 创建图表生成器，默认尺寸 10x6 英寸
func New(outputDir string) *Generator {
	return &Generator{OutputDir: outputDir, Width: 10 * vg.Inch, Height: 6 * vg.Inch}
}

// RenderAll 渲染全部图表，单个图表失败只记录日志
func (g *Generator) RenderAll(grades *model.Table, subjects []model.Subject, st *model.Statistics) model.ChartPaths {
	log := logger.ForCourse(st.Course)
	var paths model.ChartPaths

	render := func(name string, fn func() (string, error)) string {
		path, err := fn()
		if err != nil {
			log.Errorf("生成图表失败 [%s]: %v", name, err)
			return ""
		}
		if path != "" {
			log.Debugf("图表已生成: %s", path)
		}
		return path
	}

	paths.Distribution = render("distribution", func() (string, error) {
		return g.Distribution(grades, subjects, st.Course)
	})
	paths.SubjectMeans = render("subject_means", func() (string, error) {
		return g.SubjectMeans(grades, subjects, st.Course)
	})
	paths.SubjectBoxplot = render("subject_boxplot", func() (string, error) {
		return g.SubjectBoxplot(grades, subjects, st.Course)
	})
	paths.WorstSubject = render("worst_subject", func() (string, error) {
		return g.WorstSubject(grades, st.WorstSubject.Code, st.WorstSubject.Name, st.Course)
	})
	return paths
}

// Distribution 学生平均分分布直方图（含密度曲线）
func (g *Generator) Distribution(grades *model.Table, subjects []model.Subject, course string) (string, error) {
	withData := stats.SubjectsWithData(grades, subjects)
	if len(withData) == 0 {
		return "", nil
	}
	avgs := finite(stats.StudentAverages(grades, withData))
	if len(avgs) == 0 {
		return "", nil
	}

	p := newPlot(fmt.Sprintf("Distribuição das Médias Finais - %s", course),
		"Média Final do Aluno (0 a 20)", "Número de Alunos")
	p.Add(grid(true, true))

	hist, err := plotter.NewHist(plotter.Values(avgs), 15)
	if err != nil {
		return "", err
	}
	hist.FillColor = colorBar
	hist.LineStyle.Color = colorBarEdge
	p.Add(hist)

	if density := densityCurve(avgs, hist.Width); density != nil {
		p.Add(density)
	}

	return g.save(p, fmt.Sprintf("distribuicao_notas_%s.png", strings.ToLower(course)))
}

// SubjectMeans 各学科均值的水平条形图，按均值降序
func (g *Generator) SubjectMeans(grades *model.Table, subjects []model.Subject, course string) (string, error) {
	withData := stats.SubjectsWithData(grades, subjects)
	if len(withData) == 0 {
		return "", nil
	}

	type entry struct {
		name string
		mean float64
	}
	entries := make([]entry, 0, len(withData))
	for _, s := range withData {
		entries = append(entries, entry{
			name: stats.SimplifiedName(s.Code, subjects),
			mean: stat.Mean(stats.SubjectValues(grades, s.Code), nil),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].mean > entries[j].mean })

	// 条形图自下而上绘制，反转后最高均值位于顶部
	values := make(plotter.Values, len(entries))
	names := make([]string, len(entries))
	for i, e := range entries {
		k := len(entries) - 1 - i
		values[k] = e.mean
		names[k] = e.name
	}

	p := newPlot(fmt.Sprintf("Média por Disciplina - %s", course), "Média da Turma (0 a 20)", "Disciplina")
	p.X.Min, p.X.Max = 0, 20

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return "", err
	}
	bars.Horizontal = true
	bars.Color = colorBar
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)

	return g.saveSized(p, 12*vg.Inch, 8*vg.Inch, fmt.Sprintf("media_disciplina_%s.png", strings.ToLower(course)))
}

// SubjectBoxplot 各学科成绩离散程度的水平箱线图
func (g *Generator) SubjectBoxplot(grades *model.Table, subjects []model.Subject, course string) (string, error) {
	withData := stats.SubjectsWithData(grades, subjects)
	if len(withData) == 0 {
		return "", nil
	}

	p := newPlot(fmt.Sprintf("Dispersão de Notas por Disciplina - %s", course), "Nota (0 a 20)", "Disciplina")
	p.Add(grid(true, false))

	names := make([]string, len(withData))
	for i, s := range withData {
		box, err := plotter.NewBoxPlot(vg.Points(16), float64(i), plotter.Values(stats.SubjectValues(grades, s.Code)))
		if err != nil {
			return "", fmt.Errorf("boxplot %s: %w", s.Code, err)
		}
		box.Horizontal = true
		box.FillColor = colorBar
		p.Add(box)
		names[i] = stats.SimplifiedName(s.Code, subjects)
	}
	p.NominalY(names...)

	return g.saveSized(p, 12*vg.Inch, 8*vg.Inch, fmt.Sprintf("boxplot_disciplinas_%s.png", strings.ToLower(course)))
}

// WorstSubject 均值最低学科的成绩分布直方图；代码为 N/A 或不存在时不生成
func (g *Generator) WorstSubject(grades *model.Table, code, name, course string) (string, error) {
	if code == model.NotAvailable || !grades.HasColumn(code) {
		return "", nil
	}
	values := stats.SubjectValues(grades, code)
	if len(values) == 0 {
		return "", nil
	}

	p := newPlot(fmt.Sprintf("Dispersão de Notas: %s (%s)", name, course), "Nota na Disciplina (0 a 20)", "Número de Alunos")
	p.X.Min, p.X.Max = 0, 20
	p.Add(grid(true, true))

	hist, err := plotter.NewHist(plotter.Values(values), 10)
	if err != nil {
		return "", err
	}
	hist.FillColor = colorIndianRed
	hist.LineStyle.Color = colorBarEdge
	p.Add(hist)

	if density := densityCurve(values, hist.Width); density != nil {
		density.LineStyle.Color = colorIndianRed
		p.Add(density)
	}

	return g.save(p, WorstSubjectFile(name, course))
}

// WorstSubjectFile 最低学科图表的文件名，去掉学科名中的不安全字符
func WorstSubjectFile(name, course string) string {
	return fmt.Sprintf("dispersao_%s_%s.png", unsafeFileChars.ReplaceAllString(name, ""), strings.ToLower(course))
}

func (g *Generator) save(p *plot.Plot, file string) (string, error) {
	return g.saveSized(p, g.Width, g.Height, file)
}

func (g *Generator) saveSized(p *plot.Plot, w, h vg.Length, file string) (string, error) {
	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(g.OutputDir, file)
	if err := p.Save(w, h, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = xLabel
	p.X.Label.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.Text = yLabel
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)
	return p
}

func grid(vertical, horizontal bool) *plotter.Grid {
	gr := plotter.NewGrid()
	dashed := draw.LineStyle{Color: colorGrid, Width: vg.Points(0.5), Dashes: []vg.Length{vg.Points(4), vg.Points(2)}}
	gr.Vertical = dashed
	gr.Horizontal = dashed
	if !vertical {
		gr.Vertical.Color = nil
	}
	if !horizontal {
		gr.Horizontal.Color = nil
	}
	return gr
}

// densityCurve 高斯核密度估计（Scott 带宽），按样本数与组距缩放到计数尺度
func densityCurve(values []float64, binWidth float64) *plotter.Function {
	n := float64(len(values))
	sd := 0.0
	if len(values) > 1 {
		sd = stat.StdDev(values, nil)
	}
	if sd == 0 || binWidth == 0 {
		return nil
	}
	bw := sd * math.Pow(n, -0.2)
	scale := n * binWidth
	norm := 1 / (n * bw * math.Sqrt(2*math.Pi))

	f := plotter.NewFunction(func(x float64) float64 {
		var sum float64
		for _, v := range values {
			z := (x - v) / bw
			sum += math.Exp(-0.5 * z * z)
		}
		return sum * norm * scale
	})
	f.XMin, f.XMax = floats.Min(values)-3*bw, floats.Max(values)+3*bw
	f.Samples = 200
	f.LineStyle.Width = vg.Points(1.5)
	f.LineStyle.Color = colorDensity
	return f
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
