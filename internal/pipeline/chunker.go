// Package pipeline 定义了文档摄取的核心流程：清洗、切块、向量化与索引。
package pipeline

import (
	"drone-helpdesk-go/internal/model"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// 在朴素切分点之前多少个字符内寻找句号或换行。
const breakSearchWindow = 100

// ErrInvalidChunkConfig 表示 chunk_overlap >= chunk_size（或 chunk_size <= 0），游标将无法前进。
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	blankLines    = regexp.MustCompile(`\n\s*\n`)
)

// Chunker 将清洗后的文本切分为带重叠的定长分块。构造后不可变，可并发使用。
type Chunker struct {
	size    int
	overlap int
}

// NewChunker 在构造时校验参数，非法配置立即失败。
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d", ErrInvalidChunkConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size 返回分块大小（字符数）。
func (c *Chunker) Size() int { return c.size }

// Overlap 返回相邻分块的重叠字符数。
func (c *Chunker) Overlap() int { return c.overlap }

// CleanText 合并连续空白为单个空格、去除首尾空白，并将多个空行规整为一个空行。
func CleanText(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return blankLines.ReplaceAllString(text, "\n\n")
}

// Split 清洗文本后切块，按字符（rune）计数。空文本返回 nil。
func (c *Chunker) Split(text string) []string {
	runes := []rune(CleanText(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + c.size
		if end < n {
			end = c.breakPoint(runes, start, end)
		} else {
			end = n
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint 在 [end-100, end) 内从后往前找句号，其次找换行，都没有则在 end 处硬切。
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	from := end - breakSearchWindow
	if from < start {
		from = start
	}
	for _, sep := range []rune{'.', '\n'} {
		for i := end - 1; i >= from; i-- {
			if runes[i] == sep {
				return i + 1
			}
		}
	}
	return end
}

// Chunk 切块并为每个分块生成元数据与存储 ID（文件名去扩展名 + "_" + 序号，序号从 0 开始）。
func (c *Chunker) Chunk(text, source string, docType model.DocumentType) []model.Chunk {
	parts := c.Split(text)
	if len(parts) == 0 {
		return nil
	}
	stem := strings.TrimSuffix(source, filepath.Ext(source))
	chunks := make([]model.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = model.Chunk{
			ID:   fmt.Sprintf("%s_%d", stem, i),
			Text: part,
			Metadata: model.ChunkMetadata{
				Source:       source,
				DocumentType: docType,
				ChunkIndex:   i,
				TotalChunks:  len(parts),
			},
		}
	}
	return chunks
}
