package extract

import (
	"context"
	"drone-helpdesk-go/pkg/log"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// LocalPDFExtractor 在进程内解析 PDF。
type LocalPDFExtractor struct{}

// NewLocalPDFExtractor 创建本地提取器。
func NewLocalPDFExtractor() *LocalPDFExtractor {
	return &LocalPDFExtractor{}
}

// Extract 逐页读取纯文本。解析器遇到损坏文件可能 panic，这里统一转为错误。
func (e *LocalPDFExtractor) Extract(ctx context.Context, path string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf %s: %v", path, r)
		}
		if err != nil {
			log.Errorf("[LocalPDFExtractor] 提取失败, file: %s, error: %v", path, err)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warnf("[LocalPDFExtractor] 第 %d 页提取失败, file: %s, error: %v", i, path, err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return joinPages(pages)
}
