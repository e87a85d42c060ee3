package model

// NotAvailable 没有可用数据时的占位名称
const NotAvailable = "N/A"

// Cell 表格中的单元格，Valid 为 false 表示缺失
type Cell struct {
	Value float64
	Text  string
	Valid bool
}

// Table 以学生为行、以列名为列的表格（成绩表或缺勤表）
type Table struct {
	Headers []string
	Rows    [][]Cell
	index   map[string]int
}

// NewTable 根据表头与行数据创建表格，行长度不足时补齐缺失单元格
func NewTable(headers []string, rows [][]Cell) *Table {
	t := &Table{Headers: headers, index: make(map[string]int, len(headers))}
	for i, h := range headers {
		if _, ok := t.index[h]; !ok {
			t.index[h] = i
		}
	}
	for _, row := range rows {
		if len(row) < len(headers) {
			padded := make([]Cell, len(headers))
			copy(padded, row)
			row = padded
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Len 返回行数
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column 返回列的下标
func (t *Table) Column(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[name]
	return i, ok
}

// HasColumn 判断列是否存在
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Cell 返回指定行列的单元格，不存在时返回缺失单元格
func (t *Table) Cell(row int, column string) Cell {
	i, ok := t.Column(column)
	if !ok || row < 0 || row >= len(t.Rows) {
		return Cell{}
	}
	return t.Rows[row][i]
}

// Subject 学科代码与名称
type Subject struct {
	Code string `yaml:"code" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

// SubjectRef 学科代码、简化名称与均值
type SubjectRef struct {
	Code string
	Name string
	Mean float64
}

// StudentRisk 风险学生：低于及格线的学科数量
type StudentRisk struct {
	Name        string
	BelowCutoff int
}

// SubjectSummary 单个学科的描述性统计
type SubjectSummary struct {
	Code   string
	Name   string
	Count  int
	Mean   float64
	Median float64
	StdDev float64
	Min    float64
	Max    float64
}

// AbsenceSummary 缺勤汇总
type AbsenceSummary struct {
	Total      float64
	PerStudent float64
}

// Statistics 单个课程的统计结果
type Statistics struct {
	Course                  string
	TotalStudents           int
	ClassAverage            float64
	AverageStdDev           float64
	PassRate                float64 // 百分比 0-100
	PassingGrade            float64
	WorstSubject            SubjectRef
	BestSubject             SubjectRef
	WorstSubjectStdDev      float64
	WorstSubjectBelowCutoff int
	AtRisk                  []StudentRisk
	Summary                 []SubjectSummary
	Absences                *AbsenceSummary
	Narrative               string // 由 LLM 生成的评语，生成后追加
}

// HasSubjects 是否存在有成绩的学科
func (s *Statistics) HasSubjects() bool {
	return s != nil && len(s.Summary) > 0
}

// ChartPaths 图表文件路径，空字符串表示未生成
type ChartPaths struct {
	Distribution   string
	SubjectMeans   string
	SubjectBoxplot string
	WorstSubject   string
}

// General 返回总体图表路径（按报告中的顺序）
func (c ChartPaths) General() []string {
	return []string{c.Distribution, c.SubjectMeans, c.SubjectBoxplot}
}
