package service

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/internal/pipeline"
	"drone-helpdesk-go/internal/repository"
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/tasks"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const downloadURLExpiry = time.Hour

// DocumentDTO 在登记记录上附加 ready 标记。
type DocumentDTO struct {
	model.Document
	Ready bool `json:"ready"`
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// ObjectStore 是文档服务依赖的对象存储能力，由 *storage.Store 实现。
type ObjectStore interface {
	ObjectName(fileName string) string
	ListPDFs(ctx context.Context) ([]string, error)
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// TaskProducer 发送摄取任务，由 *kafka.Producer 实现。
type TaskProducer interface {
	ProduceIngestTask(ctx context.Context, task tasks.IngestTask) error
}

// DocumentService 接口定义了文档登记相关的业务操作。
type DocumentService interface {
	ListDocuments() ([]DocumentDTO, error)
	GenerateDownloadURL(ctx context.Context, fileName string) (*DownloadInfoDTO, error)
	// EnqueueIngestion 为语料目录与对象存储中的每个 PDF 发送一个摄取任务，返回任务数。
	EnqueueIngestion(ctx context.Context) (int, error)
	EnqueueFile(ctx context.Context, path string) error
}

type documentService struct {
	docRepo  repository.DocumentRepository
	store    ObjectStore
	producer TaskProducer
	docsDir  string
}

// NewDocumentService 创建一个新的 DocumentService 实例。store 与 producer 可以为 nil。
func NewDocumentService(docRepo repository.DocumentRepository, store ObjectStore, producer TaskProducer, docsDir string) DocumentService {
	return &documentService{docRepo: docRepo, store: store, producer: producer, docsDir: docsDir}
}

func (s *documentService) ListDocuments() ([]DocumentDTO, error) {
	docs, err := s.docRepo.List()
	if err != nil {
		return nil, err
	}
	dtos := make([]DocumentDTO, 0, len(docs))
	for _, d := range docs {
		dtos = append(dtos, DocumentDTO{Document: d, Ready: d.IsReady()})
	}
	return dtos, nil
}

func (s *documentService) GenerateDownloadURL(ctx context.Context, fileName string) (*DownloadInfoDTO, error) {
	if s.store == nil {
		return nil, errors.New("object storage is not configured")
	}
	doc, err := s.docRepo.FindByFilename(fileName)
	if err != nil {
		return nil, err
	}

	objectName := s.store.ObjectName(doc.Filename)
	if strings.HasPrefix(doc.FilePath, "minio://") {
		objectName = strings.TrimPrefix(doc.FilePath, "minio://")
	}
	url, err := s.store.PresignedURL(ctx, objectName, downloadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("生成下载链接失败: %w", err)
	}
	return &DownloadInfoDTO{FileName: doc.Filename, DownloadURL: url, FileSize: doc.FileSize}, nil
}

func (s *documentService) EnqueueIngestion(ctx context.Context) (int, error) {
	if s.producer == nil {
		return 0, errors.New("ingestion queue is not configured")
	}
	var queued []tasks.IngestTask

	if s.docsDir != "" {
		paths, err := pipeline.ListPDFs(s.docsDir)
		if err != nil {
			log.Warnf("[DocumentService] 读取语料目录失败: %v", err)
		}
		for _, p := range paths {
			queued = append(queued, tasks.IngestTask{FileName: filepath.Base(p), LocalPath: p})
		}
	}
	if s.store != nil {
		objects, err := s.store.ListPDFs(ctx)
		if err != nil {
			return 0, err
		}
		for _, obj := range objects {
			queued = append(queued, tasks.IngestTask{FileName: filepath.Base(obj), ObjectName: obj})
		}
	}

	for i := range queued {
		queued[i].TaskID = uuid.NewString()
		if err := s.producer.ProduceIngestTask(ctx, queued[i]); err != nil {
			return i, fmt.Errorf("发送摄取任务失败 (%s): %w", queued[i].FileName, err)
		}
	}
	log.Infof("[DocumentService] 已发送 %d 个摄取任务", len(queued))
	return len(queued), nil
}

func (s *documentService) EnqueueFile(ctx context.Context, path string) error {
	if s.producer == nil {
		return errors.New("ingestion queue is not configured")
	}
	return s.producer.ProduceIngestTask(ctx, tasks.IngestTask{
		TaskID:    uuid.NewString(),
		FileName:  filepath.Base(path),
		LocalPath: path,
	})
}
