// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"drone-helpdesk-go/internal/model"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDocumentNotFound 表示登记表中没有该文件名。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 是文档登记表的访问接口，摄取流程是唯一的写入方。
type DocumentRepository interface {
	FindByFilename(filename string) (*model.Document, error)
	// Upsert 按文件名创建或更新记录。
	Upsert(doc *model.Document) error
	List() ([]model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) FindByFilename(filename string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("filename = ?", filename).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) Upsert(doc *model.Document) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "filename"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_path", "document_type", "processed", "vector_count",
			"file_size", "page_count", "processed_at",
		}),
	}).Create(doc).Error
}

// List 按文件名排序返回全部登记记录。
func (r *documentRepository) List() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Order("filename").Find(&docs).Error
	return docs, err
}
