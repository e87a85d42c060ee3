package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/iWorld-y/course_report/app/course_report/pkg/logger"
	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

// ErrMissingInput 输入文件不存在
var ErrMissingInput = errors.New("input file not found")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Source 输入表格位置，Sheet 只对 XLSX 生效，为空时读取第一个工作表
type Source struct {
	Path  string
	Sheet string
}

// Load 读取课程的成绩表与缺勤表，任一文件不存在时返回 ErrMissingInput
func Load(grades, absences Source) (*model.Table, *model.Table, error) {
	for _, src := range []Source{grades, absences} {
		if _, err := os.Stat(src.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Log.Warnf("文件不存在 '%s'，跳过该课程", src.Path)
				return nil, nil, fmt.Errorf("%w: %s", ErrMissingInput, src.Path)
			}
			return nil, nil, err
		}
	}

	g, err := ReadSheet(grades.Path, grades.Sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read grades: %w", err)
	}
	a, err := ReadSheet(absences.Path, absences.Sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read absences: %w", err)
	}
	return g, a, nil
}

// ReadTable 根据扩展名读取 CSV 或 XLSX 表格（XLSX 取第一个工作表）
func ReadTable(path string) (*model.Table, error) {
	return ReadSheet(path, "")
}

// ReadSheet 根据扩展名读取表格，XLSX 读取指定工作表
func ReadSheet(path, sheet string) (*model.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path, sheet)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	}
}

// ReadCSV 读取 CSV，自动识别逗号或分号分隔，并去掉 UTF-8 BOM
func ReadCSV(r io.Reader) (*model.Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	data, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRecords(records)
}

func readXLSX(path, sheet string) (*model.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("workbook %s has no sheet %q", path, sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fromRecords(rows)
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func fromRecords(records [][]string) (*model.Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([][]model.Cell, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]model.Cell, len(headers))
		for i := 0; i < len(headers) && i < len(rec); i++ {
			text := strings.TrimSpace(rec[i])
			v, ok := ParseNumber(text)
			row[i] = model.Cell{Value: v, Text: text, Valid: ok}
		}
		rows = append(rows, row)
	}
	return model.NewTable(headers, rows), nil
}

func isBlank(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// ParseNumber 解析数值，接受逗号作为小数点；空值与 NaN 视为缺失
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != v {
		return 0, false
	}
	return v, true
}
