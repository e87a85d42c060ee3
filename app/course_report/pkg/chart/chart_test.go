package chart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
	"github.com/iWorld-y/course_report/app/course_report/pkg/stats"
)

var subjects = []model.Subject{
	{Code: "MAT", Name: "MATEMÁTICA - 2ª SÉRIE"},
	{Code: "GEO", Name: "GEOGRAFIA - 2ª SÉRIE"},
	{Code: "HIS", Name: "HISTÓRIA - 2ª SÉRIE"},
}

func sampleGrades() *model.Table {
	cell := func(v float64) model.Cell { return model.Cell{Value: v, Valid: true} }
	return model.NewTable([]string{"nome", "MAT", "GEO", "HIS"}, [][]model.Cell{
		{{Text: "Ana"}, cell(14), cell(16), {}},
		{{Text: "Bruno"}, cell(8), cell(13), {}},
		{{Text: "Carla"}, cell(11), cell(17), {}},
		{{Text: "Davi"}, cell(18), cell(12), {}},
	})
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}

func TestRenderAll(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)
	grades := sampleGrades()
	st := stats.Calculate(grades, subjects, "Transito", stats.DefaultOptions())

	paths := g.RenderAll(grades, subjects, st)

	assert.Equal(t, filepath.Join(dir, "distribuicao_notas_transito.png"), paths.Distribution)
	assert.Equal(t, filepath.Join(dir, "media_disciplina_transito.png"), paths.SubjectMeans)
	assert.Equal(t, filepath.Join(dir, "boxplot_disciplinas_transito.png"), paths.SubjectBoxplot)
	assert.Equal(t, filepath.Join(dir, "dispersao_Matemtica_transito.png"), paths.WorstSubject)
	for _, p := range append(paths.General(), paths.WorstSubject) {
		assertPNG(t, p)
	}
}

func TestCharts_NoData(t *testing.T) {
	dir := t.TempDir()
	g := New(dir)
	empty := model.NewTable([]string{"nome", "MAT"}, [][]model.Cell{{{Text: "Ana"}, {}}})

	for _, fn := range []func(*model.Table, []model.Subject, string) (string, error){
		g.Distribution, g.SubjectMeans, g.SubjectBoxplot,
	} {
		path, err := fn(empty, subjects, "X")
		require.NoError(t, err)
		assert.Empty(t, path)
	}

	path, err := g.WorstSubject(empty, model.NotAvailable, model.NotAvailable, "X")
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = g.WorstSubject(empty, "GEO", "Geografia", "X")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestWorstSubjectFile(t *testing.T) {
	assert.Equal(t, "dispersao_LnguaEstrangeira_estradas.png", WorstSubjectFile("Língua Estrangeira", "Estradas"))
	assert.Equal(t, "dispersao_Solos_transito.png", WorstSubjectFile("Solos", "Transito"))
}
