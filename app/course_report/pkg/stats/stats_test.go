package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

func num(v float64) model.Cell { return model.Cell{Value: v, Valid: true} }
func name(s string) model.Cell { return model.Cell{Text: s} }

var missing = model.Cell{}

var twoSubjects = []model.Subject{
	{Code: "MAT", Name: "MATEMÁTICA - 2ª SÉRIE"},
	{Code: "GEO", Name: "GEOGRAFIA - 2ª SÉRIE"},
}

func gradeTable(rows ...[]model.Cell) *model.Table {
	return model.NewTable([]string{"nome", "MAT", "GEO"}, rows)
}

func TestCalculate_AtRiskScenario(t *testing.T) {
	grades := gradeTable(
		[]model.Cell{name("Ana"), num(14), num(16)},
		[]model.Cell{name("Bruno"), num(10), num(13)},
		[]model.Cell{name("Carla"), num(15), num(12)},
	)

	st := Calculate(grades, twoSubjects, "Transito", DefaultOptions())

	require.Len(t, st.AtRisk, 3)
	assert.Equal(t, model.StudentRisk{Name: "Bruno", BelowCutoff: 1}, st.AtRisk[0])
	assert.Equal(t, model.StudentRisk{Name: "Ana", BelowCutoff: 0}, st.AtRisk[1])
	assert.Equal(t, model.StudentRisk{Name: "Carla", BelowCutoff: 0}, st.AtRisk[2])
	assert.InDelta(t, 200.0/3.0, st.PassRate, 1e-9)
	assert.Equal(t, 3, st.TotalStudents)
}

func TestCalculate_StudentAverageIsRowMean(t *testing.T) {
	grades := gradeTable(
		[]model.Cell{name("Ana"), num(14), num(16)},
		[]model.Cell{name("Bruno"), num(9), num(13)},
	)

	avgs := StudentAverages(grades, twoSubjects)
	assert.Equal(t, []float64{15, 11}, avgs)

	st := Calculate(grades, twoSubjects, "X", DefaultOptions())
	assert.InDelta(t, 13.0, st.ClassAverage, 1e-9)
	assert.InDelta(t, math.Sqrt(8), st.AverageStdDev, 1e-9)
}

func TestCalculate_MissingGradesExcludedFromSubject(t *testing.T) {
	grades := gradeTable(
		[]model.Cell{name("Ana"), num(14), missing},
		[]model.Cell{name("Bruno"), num(8), num(18)},
		[]model.Cell{name("Carla"), missing, num(10)},
	)

	st := Calculate(grades, twoSubjects, "X", DefaultOptions())

	require.Len(t, st.Summary, 2)
	assert.Equal(t, 2, st.Summary[0].Count)
	assert.InDelta(t, 11.0, st.Summary[0].Mean, 1e-9)
	assert.InDelta(t, 14.0, st.Summary[1].Mean, 1e-9)

	// 学生平均分只使用非缺失成绩
	assert.Equal(t, []float64{14, 13, 10}, StudentAverages(grades, twoSubjects))
	// 缺失成绩不算通过
	assert.Equal(t, 0.0, st.PassRate)
}

func TestCalculate_SummaryMatchesDirectStatistics(t *testing.T) {
	grades := gradeTable(
		[]model.Cell{name("A"), num(4), num(20)},
		[]model.Cell{name("B"), num(10), num(18)},
		[]model.Cell{name("C"), num(12), num(19)},
		[]model.Cell{name("D"), num(18), num(17)},
	)

	st := Calculate(grades, twoSubjects, "X", DefaultOptions())
	mat := st.Summary[0]

	assert.Equal(t, "Matemática", mat.Name)
	assert.InDelta(t, 11.0, mat.Mean, 1e-9)
	assert.InDelta(t, 11.0, mat.Median, 1e-9)
	// 样本标准差: sqrt(((−7)²+(−1)²+1²+7²)/3)
	assert.InDelta(t, math.Sqrt(100.0/3.0), mat.StdDev, 1e-9)
	assert.Equal(t, 4.0, mat.Min)
	assert.Equal(t, 18.0, mat.Max)

	assert.Equal(t, "MAT", st.WorstSubject.Code)
	assert.Equal(t, "Geografia", st.BestSubject.Name)
	assert.InDelta(t, 18.5, st.BestSubject.Mean, 1e-9)
	assert.Equal(t, 2, st.WorstSubjectBelowCutoff)
	assert.InDelta(t, mat.StdDev, st.WorstSubjectStdDev, 1e-9)
}

func TestCalculate_NoData(t *testing.T) {
	grades := gradeTable(
		[]model.Cell{name("Ana"), missing, missing},
	)

	st := Calculate(grades, twoSubjects, "X", DefaultOptions())

	assert.Equal(t, model.NotAvailable, st.WorstSubject.Name)
	assert.Equal(t, model.NotAvailable, st.BestSubject.Code)
	assert.Zero(t, st.ClassAverage)
	assert.Zero(t, st.AverageStdDev)
	assert.Zero(t, st.PassRate)
	assert.Zero(t, st.WorstSubjectBelowCutoff)
	assert.Empty(t, st.Summary)
	assert.False(t, st.HasSubjects())
	require.Len(t, st.AtRisk, 1)
	assert.Zero(t, st.AtRisk[0].BelowCutoff)
}

func TestCalculate_TiesUseDictionaryOrder(t *testing.T) {
	subjects := []model.Subject{
		{Code: "A", Name: "ALFA"},
		{Code: "B", Name: "BETA"},
		{Code: "C", Name: "GAMA"},
	}
	grades := model.NewTable([]string{"nome", "A", "B", "C"}, [][]model.Cell{
		{name("x"), num(10), num(10), num(15)},
		{name("y"), num(12), num(12), num(15)},
	})

	st := Calculate(grades, subjects, "X", DefaultOptions())
	assert.Equal(t, "A", st.WorstSubject.Code)
	assert.Equal(t, "C", st.BestSubject.Code)
}

func TestCalculate_TopNLimit(t *testing.T) {
	var rows [][]model.Cell
	for i := 0; i < 15; i++ {
		rows = append(rows, []model.Cell{name("s"), num(float64(i)), num(20)})
	}
	st := Calculate(gradeTable(rows...), twoSubjects, "X", DefaultOptions())
	assert.Len(t, st.AtRisk, 10)
}

func TestDescribe_EvenMedian(t *testing.T) {
	d := Describe("X", "X", []float64{4, 1, 3, 2})
	assert.Equal(t, 2.5, d.Median)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 4.0, d.Max)
}

func TestSimplifiedName(t *testing.T) {
	subjects := []model.Subject{
		{Code: "1LIN.003", Name: "LÍNGUA ESTRANGEIRA: INGLÊS - 2ª SÉRIE"},
		{Code: "1TT.009", Name: "PLANEJAMENTO DE TRANSPORTES"},
	}
	assert.Equal(t, "Língua Estrangeira", SimplifiedName("1LIN.003", subjects))
	assert.Equal(t, "Planejamento De Transportes", SimplifiedName("1TT.009", subjects))
	assert.Equal(t, "Xyz", SimplifiedName("XYZ", subjects))
}

func TestSummarizeAbsences(t *testing.T) {
	absences := model.NewTable([]string{"nome", "MAT", "GEO"}, [][]model.Cell{
		{name("Ana"), num(2), num(4)},
		{name("Bruno"), missing, num(0)},
	})
	got := SummarizeAbsences(absences, "nome")
	require.NotNil(t, got)
	assert.Equal(t, 6.0, got.Total)
	assert.Equal(t, 3.0, got.PerStudent)

	assert.Nil(t, SummarizeAbsences(model.NewTable([]string{"nome"}, nil), "nome"))
}
