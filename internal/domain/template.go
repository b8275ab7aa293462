package domain

import (
	"strconv"
	"strings"
)

// FormatTemplate подставляет аргументы в плейсхолдеры {0}, {1}, ...
func FormatTemplate(tpl string, args ...string) string {
	pairs := make([]string, 0, len(args)*2)
	for i, arg := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", arg)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
