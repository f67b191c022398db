package telegram

import "strings"

// markdownV2Replacer MarkdownV2 需要转义的字符
var markdownV2Replacer = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `_`, `\_`, "`", "\\`",
	`{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`,
	`(`, `\(`, `)`, `\)`, `~`, `\~`, `>`, `\>`,
	`#`, `\#`, `+`, `\+`, `-`, `\-`, `=`, `\=`,
	`|`, `\|`, `.`, `\.`, `!`, `\!`,
)

// escapeMarkdownV2 用于转义 MarkdownV2 格式中的特殊字符
func escapeMarkdownV2(input string) string {
	return markdownV2Replacer.Replace(input)
}
