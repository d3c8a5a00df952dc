package executor

import "strings"

// specifier中包名之后可能出现的分隔符
var specifierSeparators = []string{">=", "<=", "==", "~=", "!=", "<", ">", "[", ";", "@", " "}

// PackageName 从依赖声明中取出包名（小写）
// 例如 "pandas>=2.0" -> "pandas"，"Requests[socks]==2.31" -> "requests"
func PackageName(specifier string) string {
	name := strings.TrimSpace(specifier)
	for _, sep := range specifierSeparators {
		if idx := strings.Index(name, sep); idx >= 0 {
			name = name[:idx]
		}
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// FilterPreinstalled 去掉已预装的依赖和空白项，保持原有顺序
func FilterPreinstalled(requirements, preinstalled []string) []string {
	known := make(map[string]struct{}, len(preinstalled))
	for _, p := range preinstalled {
		known[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}

	filtered := make([]string, 0, len(requirements))
	for _, req := range requirements {
		if strings.TrimSpace(req) == "" {
			continue
		}
		if _, ok := known[PackageName(req)]; ok {
			continue
		}
		filtered = append(filtered, strings.TrimSpace(req))
	}
	return filtered
}

// cleanRequirements 去掉空白项
func cleanRequirements(requirements []string) []string {
	return FilterPreinstalled(requirements, nil)
}
