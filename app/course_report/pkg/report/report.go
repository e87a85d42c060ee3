// Package report 使用 fpdf 生成课程 PDF 报告
package report

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/iWorld-y/course_report/app/course_report/pkg/config"
	"github.com/iWorld-y/course_report/app/course_report/pkg/logger"
	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

var (
	colorNavy       = [3]int{0, 32, 96}
	colorGrey       = [3]int{128, 128, 128}
	colorBlack      = [3]int{0, 0, 0}
	colorBeige      = [3]int{245, 245, 220}
	colorDarkRed    = [3]int{139, 0, 0}
	colorCadetBlue  = [3]int{95, 158, 160}
	colorLightPink  = [3]int{255, 182, 193}
	colorWhiteSmoke = [3]int{245, 245, 245}
)

const (
	marginLeft   = 25.0
	marginRight  = 25.0
	marginTop    = 40.0
	marginBottom = 25.0

	imageMaxW = 160.0
	imageMaxH = 110.0
)

// Builder PDF 报告生成器
type Builder struct {
	cfg config.ReportConfig
	now func() time.Time
}

// NewBuilder 创建报告生成器
func NewBuilder(cfg config.ReportConfig) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// doc 单次生成过程中的状态
type doc struct {
	pdf  *fpdf.Fpdf
	tr   func(string) string
	logo string
}

// Build 生成课程报告并写入 out
func (b *Builder) Build(course string, st *model.Statistics, charts model.ChartPaths, out string) error {
	if st == nil {
		return errors.New("statistics is nil")
	}
	log := logger.ForCourse(course)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.SetTitle(b.cfg.Title, true)

	d := &doc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	d.logo = d.registerLogo(b.cfg.LogoPath, log.Warnf)

	pdf.SetHeaderFunc(func() { d.header(b.cfg.HeaderLines) })
	pdf.SetFooterFunc(func() { d.footer(b.cfg.Footer) })

	d.cover(b.cfg.Title, fmt.Sprintf("%s %s", b.cfg.CoursePrefix, titleCase(course)), LongDate(b.now()))

	pdf.AddPage()
	d.heading("Estatísticas Gerais da Turma")
	d.keyValueTable(generalRows(st), colorBeige)
	pdf.Ln(10)

	d.heading("Alunos com Maior Número de Disciplinas Abaixo da Média")
	d.atRiskTable(st)
	pdf.Ln(10)

	d.heading("Visualizações Gráficas Gerais")
	for _, path := range charts.General() {
		d.image(path, log.Warnf)
	}

	d.heading("Resumo Estatístico por Disciplina")
	d.summaryTable(st.Summary)
	pdf.Ln(10)

	if charts.WorstSubject != "" && fileExists(charts.WorstSubject) {
		pdf.AddPage()
		d.heading("Análise da Disciplina com Menor Desempenho")
		d.keyValueTable([][2]string{
			{"Disciplina:", st.WorstSubject.Name},
			{"Média da Turma:", fmt.Sprintf("%.2f", st.WorstSubject.Mean)},
			{"Desvio Padrão:", fmt.Sprintf("%.2f", st.WorstSubjectStdDev)},
			{fmt.Sprintf("Alunos com Nota < %.1f:", st.PassingGrade), fmt.Sprintf("%d", st.WorstSubjectBelowCutoff)},
		}, colorLightPink)
		pdf.Ln(5)
		d.image(charts.WorstSubject, log.Warnf)
	}

	if st.Narrative != "" {
		pdf.AddPage()
		d.heading("Análise e Comentários (Gerado por Inteligência Artificial)")
		pdf.SetFont("Times", "", 11)
		pdf.SetTextColor(colorBlack[0], colorBlack[1], colorBlack[2])
		pdf.MultiCell(0, 5.5, d.tr(st.Narrative), "", "J", false)
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := pdf.OutputFileAndClose(out); err != nil {
		return fmt.Errorf("PDF output error: %w", err)
	}
	log.Infof("PDF 报告已生成: %s", out)
	return nil
}

func (d *doc) registerLogo(path string, warnf func(string, ...interface{})) string {
	if path == "" {
		return ""
	}
	if !fileExists(path) {
		warnf("未找到 logo 图片 '%s'", path)
		return ""
	}
	d.pdf.RegisterImageOptions(path, fpdf.ImageOptions{ReadDpi: true})
	if d.pdf.Err() {
		warnf("无法加载 logo 图片 '%s': %v", path, d.pdf.Error())
		d.pdf.ClearError()
		return ""
	}
	return path
}

func (d *doc) header(lines []string) {
	pdf := d.pdf
	pageW, _ := pdf.GetPageSize()

	if d.logo != "" {
		// 高度 20mm，宽度按比例
		pdf.ImageOptions(d.logo, 15, 10, 0, 20, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
	}

	pdf.SetFont("Times", "B", 10)
	pdf.SetTextColor(colorNavy[0], colorNavy[1], colorNavy[2])
	y := 15.0
	for _, line := range lines {
		pdf.SetXY(0, y)
		pdf.CellFormat(pageW, 5, d.tr(line), "", 0, "C", false, 0, "")
		y += 5
	}
	pdf.SetXY(marginLeft, marginTop)
}

func (d *doc) footer(text string) {
	pdf := d.pdf
	pdf.SetY(-18)
	pdf.SetFont("Times", "I", 8)
	pdf.SetTextColor(colorGrey[0], colorGrey[1], colorGrey[2])
	if text != "" {
		pdf.CellFormat(0, 4, d.tr(text), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 4, d.tr(fmt.Sprintf("Página %d", pdf.PageNo())), "", 0, "C", false, 0, "")
}

func (d *doc) cover(title, subtitle, date string) {
	pdf := d.pdf
	pdf.AddPage()
	_, pageH := pdf.GetPageSize()

	pdf.SetY(100)
	pdf.SetFont("Times", "B", 22)
	pdf.SetTextColor(colorNavy[0], colorNavy[1], colorNavy[2])
	pdf.MultiCell(0, 10, d.tr(title), "", "C", false)

	pdf.Ln(15)
	pdf.SetFont("Times", "", 18)
	pdf.MultiCell(0, 9, d.tr(subtitle), "", "C", false)

	pdf.SetY(pageH - 60)
	pdf.SetFont("Times", "", 12)
	pdf.SetTextColor(colorBlack[0], colorBlack[1], colorBlack[2])
	pdf.CellFormat(0, 6, d.tr(date), "", 1, "C", false, 0, "")
}

func (d *doc) heading(text string) {
	pdf := d.pdf
	pdf.SetFont("Times", "B", 14)
	pdf.SetTextColor(colorBlack[0], colorBlack[1], colorBlack[2])
	pdf.CellFormat(0, 8, d.tr(text), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func (d *doc) keyValueTable(rows [][2]string, fill [3]int) {
	pdf := d.pdf
	pdf.SetFont("Times", "", 11)
	pdf.SetTextColor(colorBlack[0], colorBlack[1], colorBlack[2])
	pdf.SetFillColor(fill[0], fill[1], fill[2])
	pdf.SetDrawColor(colorBlack[0], colorBlack[1], colorBlack[2])
	for _, r := range rows {
		pdf.CellFormat(70, 8, d.tr(r[0]), "1", 0, "L", true, 0, "")
		pdf.CellFormat(90, 8, d.tr(r[1]), "1", 1, "L", true, 0, "")
	}
}

func (d *doc) headerRow(cols []string, widths []float64, fill [3]int, size float64) {
	pdf := d.pdf
	pdf.SetFont("Times", "B", size)
	pdf.SetFillColor(fill[0], fill[1], fill[2])
	pdf.SetTextColor(colorWhiteSmoke[0], colorWhiteSmoke[1], colorWhiteSmoke[2])
	pdf.SetDrawColor(colorBlack[0], colorBlack[1], colorBlack[2])
	for i, c := range cols {
		pdf.CellFormat(widths[i], 7, d.tr(c), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Times", "", size)
	pdf.SetTextColor(colorBlack[0], colorBlack[1], colorBlack[2])
}

func (d *doc) atRiskTable(st *model.Statistics) {
	widths := []float64{120, 40}
	d.headerRow([]string{"Aluno", fmt.Sprintf("Disciplinas < %g", st.PassingGrade)}, widths, colorDarkRed, 11)
	for _, r := range st.AtRisk {
		d.pdf.CellFormat(widths[0], 7, d.tr(r.Name), "1", 0, "C", false, 0, "")
		d.pdf.CellFormat(widths[1], 7, fmt.Sprintf("%d", r.BelowCutoff), "1", 1, "C", false, 0, "")
	}
}

func (d *doc) summaryTable(rows []model.SubjectSummary) {
	widths := []float64{45, 20, 20, 25, 20, 20}
	d.headerRow([]string{"Disciplina", "Média", "Mediana", "Desv. Padrão", "Mínimo", "Máximo"}, widths, colorCadetBlue, 8)
	for _, r := range rows {
		cells := []string{
			r.Name,
			fmt.Sprintf("%.2f", r.Mean),
			fmt.Sprintf("%.2f", r.Median),
			fmt.Sprintf("%.2f", r.StdDev),
			fmt.Sprintf("%.2f", r.Min),
			fmt.Sprintf("%.2f", r.Max),
		}
		for i, c := range cells {
			ln := 0
			if i == len(cells)-1 {
				ln = 1
			}
			d.pdf.CellFormat(widths[i], 6, d.tr(c), "1", ln, "C", false, 0, "")
		}
	}
}

// image 按比例缩放到 160x110mm 内居中放置；文件不存在或无法读取时跳过
func (d *doc) image(path string, warnf func(string, ...interface{})) {
	if path == "" || !fileExists(path) {
		return
	}
	pdf := d.pdf
	opts := fpdf.ImageOptions{ReadDpi: true}
	info := pdf.RegisterImageOptions(path, opts)
	if pdf.Err() || info == nil {
		warnf("无法加载图片 '%s': %v", path, pdf.Error())
		pdf.ClearError()
		return
	}

	w, h := FitProportional(info.Width(), info.Height(), imageMaxW, imageMaxH)
	pageW, pageH := pdf.GetPageSize()
	if pdf.GetY()+h > pageH-marginBottom {
		pdf.AddPage()
	}
	x := marginLeft + (pageW-marginLeft-marginRight-w)/2
	y := pdf.GetY()
	pdf.ImageOptions(path, x, y, w, h, false, opts, 0, "")
	pdf.SetY(y + h + 10)
}

// FitProportional 将宽高按比例缩放到最大尺寸内
func FitProportional(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := math.Min(maxW/w, maxH/h)
	return w * scale, h * scale
}

func generalRows(st *model.Statistics) [][2]string {
	rows := [][2]string{
		{"Total de Alunos:", fmt.Sprintf("%d", st.TotalStudents)},
		{"Média Geral da Turma:", fmt.Sprintf("%.2f", st.ClassAverage)},
		{"Desvio Padrão das Médias:", fmt.Sprintf("%.2f", st.AverageStdDev)},
		{fmt.Sprintf("Taxa de Aprovação (>= %.1f em tudo):", st.PassingGrade), fmt.Sprintf("%.2f%%", st.PassRate)},
		{"Disciplina com Maior Média:", fmt.Sprintf("%s (%.2f)", st.BestSubject.Name, st.BestSubject.Mean)},
		{"Disciplina com Menor Média:", fmt.Sprintf("%s (%.2f)", st.WorstSubject.Name, st.WorstSubject.Mean)},
	}
	if st.Absences != nil {
		rows = append(rows,
			[2]string{"Total de Faltas:", fmt.Sprintf("%.0f", st.Absences.Total)},
			[2]string{"Média de Faltas por Aluno:", fmt.Sprintf("%.2f", st.Absences.PerStudent)},
		)
	}
	return rows
}

func titleCase(s string) string {
	return cases.Title(language.BrazilianPortuguese).String(s)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
