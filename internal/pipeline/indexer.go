package pipeline

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/internal/repository"
	"drone-helpdesk-go/pkg/extract"
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/tasks"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ChunkIndex 是 Indexer 需要的向量索引能力。
type ChunkIndex interface {
	AddChunks(ctx context.Context, chunks []model.Chunk) error
	Count(ctx context.Context) (int64, error)
}

// ObjectFetcher 把对象存储中的文件下载到本地路径。
type ObjectFetcher interface {
	Download(ctx context.Context, objectName, destPath string) error
}

// Outcome 是单个文档的摄取结果。
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// FileResult 描述单个文档的摄取结果。
type FileResult struct {
	Filename string
	Outcome  Outcome
	Chunks   int
	Err      error
}

// Summary 汇总一次批量摄取。
type Summary struct {
	FilesSeen     int
	Processed     int
	Skipped       int
	Failed        int
	TotalChunks   int
	IndexCount    int64
	ProcessedRows int
	Results       []FileResult
}

// Indexer 串联提取、清洗、切块、向量化与登记。同一语料只允许单个实例写入。
type Indexer struct {
	extractor extract.Extractor
	chunker   *Chunker
	index     ChunkIndex
	docRepo   repository.DocumentRepository
	fetcher   ObjectFetcher
}

// NewIndexer 创建一个新的 Indexer 实例。fetcher 可以为 nil（不从对象存储摄取）。
func NewIndexer(
	extractor extract.Extractor,
	chunker *Chunker,
	index ChunkIndex,
	docRepo repository.DocumentRepository,
	fetcher ObjectFetcher,
) *Indexer {
	return &Indexer{
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		docRepo:   docRepo,
		fetcher:   fetcher,
	}
}

// ListPDFs 返回目录下（不递归）所有 .pdf 文件，按文件名排序。
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read docs dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// IsPDF 按扩展名判断，大小写不敏感。
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// IngestDirectory 逐个处理目录中的 PDF。单个文档失败不会中断整个批次。
func (ix *Indexer) IngestDirectory(ctx context.Context, dir string) (Summary, error) {
	paths, err := ListPDFs(dir)
	if err != nil {
		return Summary{}, err
	}
	if len(paths) == 0 {
		log.Warnf("[Indexer] 目录 %s 中没有找到 PDF", dir)
	} else {
		log.Infof("[Indexer] 在 %s 中找到 %d 个 PDF", dir, len(paths))
	}

	summary := Summary{FilesSeen: len(paths)}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res := ix.IngestFile(ctx, path)
		summary.Results = append(summary.Results, res)
		switch res.Outcome {
		case OutcomeProcessed:
			summary.Processed++
			summary.TotalChunks += res.Chunks
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
		}
	}

	if n, err := ix.index.Count(ctx); err != nil {
		log.Warnf("[Indexer] 获取索引分块总数失败: %v", err)
	} else {
		summary.IndexCount = n
	}
	if docs, err := ix.docRepo.List(); err != nil {
		log.Warnf("[Indexer] 读取文档登记表失败: %v", err)
	} else {
		for _, d := range docs {
			if d.Processed {
				summary.ProcessedRows++
			}
		}
	}

	log.Infow("[Indexer] 批量摄取完成",
		"files", summary.FilesSeen,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"chunks", summary.TotalChunks,
		"index_count", summary.IndexCount,
	)
	return summary, nil
}

// IngestFile 处理单个 PDF。已处理的文档直接跳过；只有分块全部写入索引后才登记为已处理。
func (ix *Indexer) IngestFile(ctx context.Context, path string) FileResult {
	return ix.ingest(ctx, path, path)
}

// ingest 读取 path，并在登记表中记录 recordedPath（对象存储中的文件记录对象名）。
func (ix *Indexer) ingest(ctx context.Context, path, recordedPath string) FileResult {
	filename := filepath.Base(path)
	res := FileResult{Filename: filename}
	docType := DocumentTypeForFilename(filename)
	log.Infof("[Indexer] 开始处理: %s, 类型: %s", filename, docType)

	existing, err := ix.docRepo.FindByFilename(filename)
	switch {
	case err == nil && existing.Processed:
		log.Infof("[Indexer] %s 已处理过, 跳过", filename)
		res.Outcome = OutcomeSkipped
		return res
	case err != nil && !errors.Is(err, repository.ErrDocumentNotFound):
		return ix.fail(res, fmt.Errorf("lookup document: %w", err))
	}

	info, err := os.Stat(path)
	if err != nil {
		return ix.fail(res, fmt.Errorf("stat %s: %w", path, err))
	}

	extracted, err := ix.extractor.Extract(ctx, path)
	if err != nil {
		return ix.fail(res, fmt.Errorf("extract: %w", err))
	}

	chunks := ix.chunker.Chunk(extracted.Text, filename, docType)
	if len(chunks) == 0 {
		return ix.fail(res, fmt.Errorf("extract: %w", extract.ErrNoText))
	}
	log.Infof("[Indexer] %s 切分为 %d 个分块", filename, len(chunks))

	if err := ix.index.AddChunks(ctx, chunks); err != nil {
		return ix.fail(res, fmt.Errorf("index chunks: %w", err))
	}

	now := time.Now()
	doc := &model.Document{
		Filename:     filename,
		FilePath:     recordedPath,
		DocumentType: docType,
		Processed:    true,
		VectorCount:  len(chunks),
		FileSize:     info.Size(),
		PageCount:    extracted.PageCount,
		ProcessedAt:  &now,
	}
	if err := ix.docRepo.Upsert(doc); err != nil {
		// 分块已写入但未登记，下次运行会以相同 ID 覆盖写入
		return ix.fail(res, fmt.Errorf("record document: %w", err))
	}

	log.Infof("[Indexer] %s 处理成功, 分块数: %d", filename, len(chunks))
	res.Outcome = OutcomeProcessed
	res.Chunks = len(chunks)
	return res
}

func (ix *Indexer) fail(res FileResult, err error) FileResult {
	log.Errorf("[Indexer] %s 处理失败, 跳过: %v", res.Filename, err)
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}

// Process 实现 kafka.TaskProcessor。失败时返回错误，由消费者决定是否重试。
func (ix *Indexer) Process(ctx context.Context, task tasks.IngestTask) error {
	path, recordedPath := task.LocalPath, task.LocalPath
	if task.ObjectName != "" {
		if ix.fetcher == nil {
			return errors.New("object storage is not configured")
		}
		tmpDir, err := os.MkdirTemp("", "ingest-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmpDir)

		name := task.FileName
		if name == "" {
			name = filepath.Base(task.ObjectName)
		}
		path = filepath.Join(tmpDir, filepath.Base(name))
		recordedPath = "minio://" + task.ObjectName
		if err := ix.fetcher.Download(ctx, task.ObjectName, path); err != nil {
			return fmt.Errorf("download %s: %w", task.ObjectName, err)
		}
	}
	if path == "" {
		return fmt.Errorf("task %s has neither object_name nor local_path", task.TaskID)
	}

	res := ix.ingest(ctx, path, recordedPath)
	if res.Outcome == OutcomeFailed {
		return res.Err
	}
	return nil
}
