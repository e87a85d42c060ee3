package narrative

import (
	"fmt"
	"strings"

	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

const promptTpl = `Você é um especialista em análise de dados educacionais. Com base nos dados a seguir, gere uma análise em português. Não faça em formato MarkDown, ou seja, não use * ou #.

Contexto:
- Curso: %s
- Total de Alunos: %d

Análise Geral da Turma:
- Média Geral (0-20): %.2f
- Dispersão das Médias (Desvio Padrão): %.2f (Valores mais altos indicam maior variação de desempenho entre os alunos).
- Taxa de Aprovação Geral (Nota >= %g em tudo): %.2f%%

Resumo Estatístico por Disciplina:
%s

Instruções:
1. Primeiro Parágrafo: Comente sobre o desempenho geral da turma. A média é satisfatória? A turma é homogênea (baixo desvio padrão geral) ou heterogênea? A taxa de aprovação geral é preocupante?
2. Segundo Parágrafo: Analise as disciplinas. Destaque a disciplina com menor média (%s) e comente sobre o número de alunos com nota baixa nela (%d).
3. Terceiro Parágrafo: Com base na tabela de resumo estatístico, identifique e comente sobre as disciplinas que apresentam um desempenho ruim dos alunos. Faça uma comparação entre os indicadores e aponte possibilidades para melhorá-los.

O tom deve ser profissional e objetivo.`

// BuildPrompt 根据统计结果构造提示词
func BuildPrompt(st *model.Statistics, course string) string {
	return fmt.Sprintf(promptTpl,
		course, st.TotalStudents,
		st.ClassAverage, st.AverageStdDev,
		st.PassingGrade, st.PassRate,
		SummaryMarkdown(st.Summary),
		st.WorstSubject.Name, st.WorstSubjectBelowCutoff,
	)
}

// SummaryMarkdown 将学科统计表格式化为 Markdown 表格
func SummaryMarkdown(rows []model.SubjectSummary) string {
	var sb strings.Builder
	sb.WriteString("| Disciplina | Média | Mediana | Desv. Padrão | Mínimo | Máximo |\n")
	sb.WriteString("|:-----------|------:|--------:|-------------:|-------:|-------:|\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "| %s | %.2f | %.2f | %.2f | %.2f | %.2f |\n", r.Name, r.Mean, r.Median, r.StdDev, r.Min, r.Max)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// cleanText 去掉模型返回中的 Markdown 代码块与标记
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "#")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.TrimPrefix(strings.TrimSpace(line), "* ")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
