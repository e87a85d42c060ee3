package stats

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

var nameSeparator = regexp.MustCompile(` - |:`)

// SimplifiedName 返回学科的简化名称：取第一个 " - " 或 ":" 之前的部分并转为标题大小写，未知代码返回代码本身
func SimplifiedName(code string, subjects []model.Subject) string {
	full := code
	for _, s := range subjects {
		if s.Code == code {
			full = s.Name
			break
		}
	}
	first := strings.TrimSpace(nameSeparator.Split(full, 2)[0])
	return cases.Title(language.BrazilianPortuguese).String(first)
}
