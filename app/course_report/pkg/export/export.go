// Package export 将统计表格导出为 CSV 与 XLSX
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

const (
	sheetSummary = "Resumo"
	sheetAtRisk  = "Alunos"
	sheetGeneral = "Geral"
)

var (
	// SummaryHeaders 学科统计表表头
	SummaryHeaders = []string{"Disciplina", "Média", "Mediana", "Desv. Padrão", "Mínimo", "Máximo"}
	// AtRiskHeaders 风险学生表表头
	AtRiskHeaders = []string{"Aluno", "Disciplinas Abaixo"}
)

// SummaryRecords 学科统计表的行，数值保留两位小数
func SummaryRecords(rows []model.SubjectSummary) [][]string {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.Name, f2(r.Mean), f2(r.Median), f2(r.StdDev), f2(r.Min), f2(r.Max),
		})
	}
	return records
}

// AtRiskRecords 风险学生表的行
func AtRiskRecords(rows []model.StudentRisk) [][]string {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{r.Name, strconv.Itoa(r.BelowCutoff)})
	}
	return records
}

// WriteCSV 写入 CSV 文件；bom 为 true 时写入 UTF-8 BOM 以便电子表格正确识别编码
func WriteCSV(path string, headers []string, records [][]string, bom bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if bom {
		if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return err
		}
	}
	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write csv %s: %w", path, err)
	}
	return f.Close()
}

// WriteWorkbook 写入包含总体统计、学科统计与风险学生三个工作表的 XLSX 文件
func WriteWorkbook(path string, st *model.Statistics) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetGeneral); err != nil {
		return err
	}
	general := [][]interface{}{
		{"Curso", st.Course},
		{"Total de Alunos", st.TotalStudents},
		{"Média Geral da Turma", round2(st.ClassAverage)},
		{"Desvio Padrão das Médias", round2(st.AverageStdDev)},
		{"Taxa de Aprovação (%)", round2(st.PassRate)},
		{"Disciplina com Maior Média", st.BestSubject.Name},
		{"Disciplina com Menor Média", st.WorstSubject.Name},
	}
	if st.Absences != nil {
		general = append(general,
			[]interface{}{"Total de Faltas", st.Absences.Total},
			[]interface{}{"Média de Faltas por Aluno", round2(st.Absences.PerStudent)},
		)
	}
	if err := writeRows(f, sheetGeneral, nil, general); err != nil {
		return err
	}

	summary := make([][]interface{}, 0, len(st.Summary))
	for _, r := range st.Summary {
		summary = append(summary, []interface{}{r.Name, round2(r.Mean), round2(r.Median), round2(r.StdDev), round2(r.Min), round2(r.Max)})
	}
	if err := writeSheet(f, sheetSummary, SummaryHeaders, summary); err != nil {
		return err
	}

	atRisk := make([][]interface{}, 0, len(st.AtRisk))
	for _, r := range st.AtRisk {
		atRisk = append(atRisk, []interface{}{r.Name, r.BelowCutoff})
	}
	if err := writeSheet(f, sheetAtRisk, AtRiskHeaders, atRisk); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	return writeRows(f, sheet, headers, rows)
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	start := 1
	if headers != nil {
		head := make([]interface{}, len(headers))
		for i, h := range headers {
			head[i] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
			return err
		}
		start = 2
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, start+i)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
