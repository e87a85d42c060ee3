// Package stats 计算课程成绩的描述性统计
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

// Options 统计选项
type Options struct {
	PassingGrade float64
	TopN         int
	NameColumn   string
}

// DefaultOptions 默认及格线 12.0，风险学生取前 10 名
func DefaultOptions() Options {
	return Options{PassingGrade: 12.0, TopN: 10, NameColumn: "nome"}
}

// SubjectsWithData 返回字典中存在于表格且至少有一个成绩的学科，保持字典顺序
func SubjectsWithData(grades *model.Table, subjects []model.Subject) []model.Subject {
	var out []model.Subject
	for _, s := range subjects {
		if !grades.HasColumn(s.Code) {
			continue
		}
		if len(SubjectValues(grades, s.Code)) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// SubjectValues 返回某学科的非缺失成绩
func SubjectValues(grades *model.Table, code string) []float64 {
	col, ok := grades.Column(code)
	if !ok {
		return nil
	}
	var values []float64
	for _, row := range grades.Rows {
		if row[col].Valid {
			values = append(values, row[col].Value)
		}
	}
	return values
}

// StudentAverages 返回每个学生在有成绩学科上的平均分，没有任何成绩的学生为 NaN
func StudentAverages(grades *model.Table, subjects []model.Subject) []float64 {
	cols := columns(grades, subjects)
	avgs := make([]float64, grades.Len())
	for i, row := range grades.Rows {
		var sum float64
		var n int
		for _, c := range cols {
			if row[c].Valid {
				sum += row[c].Value
				n++
			}
		}
		if n == 0 {
			avgs[i] = math.NaN()
			continue
		}
		avgs[i] = sum / float64(n)
	}
	return avgs
}

// Calculate 计算课程统计结果；没有任何成绩时返回零值与 N/A 占位
func Calculate(grades *model.Table, subjects []model.Subject, course string, opts Options) *model.Statistics {
	if opts.TopN <= 0 {
		opts.TopN = DefaultOptions().TopN
	}
	if opts.NameColumn == "" {
		opts.NameColumn = DefaultOptions().NameColumn
	}

	st := &model.Statistics{
		Course:        course,
		TotalStudents: grades.Len(),
		PassingGrade:  opts.PassingGrade,
		WorstSubject:  model.SubjectRef{Code: model.NotAvailable, Name: model.NotAvailable},
		BestSubject:   model.SubjectRef{Code: model.NotAvailable, Name: model.NotAvailable},
	}

	withData := SubjectsWithData(grades, subjects)

	avgs := dropNaN(StudentAverages(grades, withData))
	st.ClassAverage = mean(avgs)
	st.AverageStdDev = stdDev(avgs)
	st.PassRate = passRate(grades, withData, opts.PassingGrade)

	// 按均值升序稳定排序：第一个为最低，最后一个为最高
	refs := make([]model.SubjectRef, 0, len(withData))
	for _, s := range withData {
		refs = append(refs, model.SubjectRef{
			Code: s.Code,
			Name: SimplifiedName(s.Code, subjects),
			Mean: mean(SubjectValues(grades, s.Code)),
		})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Mean < refs[j].Mean })

	if len(refs) > 0 {
		st.WorstSubject = refs[0]
		st.BestSubject = refs[len(refs)-1]

		worst := SubjectValues(grades, st.WorstSubject.Code)
		st.WorstSubjectStdDev = stdDev(worst)
		for _, v := range worst {
			if v < opts.PassingGrade {
				st.WorstSubjectBelowCutoff++
			}
		}
	}

	st.AtRisk = atRisk(grades, withData, opts)

	for _, s := range withData {
		st.Summary = append(st.Summary, Describe(s.Code, SimplifiedName(s.Code, subjects), SubjectValues(grades, s.Code)))
	}

	return st
}

// Describe 计算单个学科的描述性统计
func Describe(code, name string, values []float64) model.SubjectSummary {
	sum := model.SubjectSummary{Code: code, Name: name, Count: len(values)}
	if len(values) == 0 {
		return sum
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum.Mean = mean(sorted)
	sum.Median = median(sorted)
	sum.StdDev = stdDev(sorted)
	sum.Min = floats.Min(sorted)
	sum.Max = floats.Max(sorted)
	return sum
}

// SummarizeAbsences 汇总缺勤表中所有数值列；没有数值时返回 nil
func SummarizeAbsences(absences *model.Table, nameColumn string) *model.AbsenceSummary {
	if absences.Len() == 0 {
		return nil
	}
	nameCol, hasName := absences.Column(nameColumn)
	var total float64
	var found bool
	for _, row := range absences.Rows {
		for i, c := range row {
			if hasName && i == nameCol {
				continue
			}
			if c.Valid {
				total += c.Value
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return &model.AbsenceSummary{Total: total, PerStudent: total / float64(absences.Len())}
}

func passRate(grades *model.Table, subjects []model.Subject, cutoff float64) float64 {
	if grades.Len() == 0 || len(subjects) == 0 {
		return 0
	}
	cols := columns(grades, subjects)
	passed := 0
	for _, row := range grades.Rows {
		ok := true
		for _, c := range cols {
			// 缺失成绩不算通过
			if !row[c].Valid || row[c].Value < cutoff {
				ok = false
				break
			}
		}
		if ok {
			passed++
		}
	}
	return float64(passed) / float64(grades.Len()) * 100
}

func atRisk(grades *model.Table, subjects []model.Subject, opts Options) []model.StudentRisk {
	cols := columns(grades, subjects)
	risks := make([]model.StudentRisk, 0, grades.Len())
	for i, row := range grades.Rows {
		r := model.StudentRisk{Name: grades.Cell(i, opts.NameColumn).Text}
		for _, c := range cols {
			if row[c].Valid && row[c].Value < opts.PassingGrade {
				r.BelowCutoff++
			}
		}
		risks = append(risks, r)
	}
	sort.SliceStable(risks, func(i, j int) bool { return risks[i].BelowCutoff > risks[j].BelowCutoff })
	if len(risks) > opts.TopN {
		risks = risks[:opts.TopN]
	}
	return risks
}

func columns(grades *model.Table, subjects []model.Subject) []int {
	cols := make([]int, 0, len(subjects))
	for _, s := range subjects {
		if c, ok := grades.Column(s.Code); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

func dropNaN(values []float64) []float64 {
	out := values[:0:0]
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// stdDev 样本标准差 (n-1)，少于两个值时为 0
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// median 线性插值中位数，输入必须已排序
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
