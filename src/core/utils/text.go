package utils

import (
	"regexp"
	"strings"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// NormalizeText 整理识别结果：统一换行、去掉行尾空白、合并多余空行
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Preview 截取文本前 n 个字符用于日志输出
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
