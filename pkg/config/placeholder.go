package config

import (
	"regexp"
)

// placeholderPattern 匹配 ${NAME} 和 ${NAME:-default}
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)(:-([^}]*))?\}`)

// ReplacePlaceholders 替换文本中的 ${NAME} 占位符（对外导出）
// lookup 找不到时使用 :- 后的默认值；既没有值也没有默认值的占位符保持原样，并在返回值中列出
func ReplacePlaceholders(text string, lookup func(name string) (string, bool)) (string, []string) {
	var unresolved []string
	replaced := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		name := groups[1]
		if value, ok := lookup(name); ok {
			return value
		}
		if groups[2] != "" {
			return groups[3]
		}
		unresolved = append(unresolved, name)
		return match
	})
	return replaced, unresolved
}

// MapLookup 基于map的占位符查找
func MapLookup(params map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := params[name]
		return v, ok
	}
}
