package extract

import (
	"context"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/pkg/log"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
)

// TikaExtractor 把文件发送给 Apache Tika 服务器，按 XHTML 中的 div.page 拆分页面。
type TikaExtractor struct {
	serverURL  string
	httpClient *http.Client
}

// NewTikaExtractor 创建一个新的 Tika 提取器实例。
func NewTikaExtractor(cfg config.TikaConfig) *TikaExtractor {
	return &TikaExtractor{serverURL: cfg.ServerURL, httpClient: http.DefaultClient}
}

func (e *TikaExtractor) Extract(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.serverURL+"/tika", f)
	if err != nil {
		return Result{}, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", detectMimeType(path))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Errorf("[TikaExtractor] 调用 Tika 失败, file: %s, error: %v", path, err)
		return Result{}, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Errorf("[TikaExtractor] Tika 返回错误 [%d], file: %s", resp.StatusCode, path)
		return Result{}, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("解析 Tika 响应失败: %w", err)
	}

	var pages []string
	doc.Find("div.page").Each(func(_ int, s *goquery.Selection) {
		pages = append(pages, s.Text())
	})
	if len(pages) == 0 {
		// 非分页格式，整个 body 视为一页
		pages = append(pages, doc.Find("body").Text())
	}
	return joinPages(pages)
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
