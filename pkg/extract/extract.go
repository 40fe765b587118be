// Package extract 从 PDF 中按页提取文本，每页前加 "--- Page N ---" 标记。
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoText 表示文件可以打开但没有任何可提取的文本（例如扫描件）。
var ErrNoText = errors.New("no extractable text")

// Result 是一次提取的结果。
type Result struct {
	Text      string
	PageCount int
}

// Extractor 从文件路径提取带页码标记的文本。
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}

// pageMarker 返回第 n 页（从 1 开始）的标记。
func pageMarker(n int) string {
	return fmt.Sprintf("--- Page %d ---", n)
}

// joinPages 拼接各页文本，空白页仍保留页码以便定位。
func joinPages(pages []string) (Result, error) {
	var sb strings.Builder
	hasText := false
	for i, text := range pages {
		text = strings.TrimSpace(text)
		if text != "" {
			hasText = true
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(pageMarker(i + 1))
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	if !hasText {
		return Result{PageCount: len(pages)}, ErrNoText
	}
	return Result{Text: sb.String(), PageCount: len(pages)}, nil
}
