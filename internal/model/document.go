package model

import "time"

// DocumentType 是法规文档的类别标签。
type DocumentType string

const (
	DocumentTypeA1     DocumentType = "pdf_aesa_a1"
	DocumentTypeA2     DocumentType = "pdf_aesa_a2"
	DocumentTypeA3     DocumentType = "pdf_aesa_a3"
	DocumentTypeManual DocumentType = "manual"
	DocumentTypeFAQ    DocumentType = "faq"
	DocumentTypeOther  DocumentType = "other"
)

// Document 是文档登记表的一行，以文件名唯一标识，仅由摄取流程写入。
type Document struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Filename     string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"filename"`
	FilePath     string       `gorm:"type:varchar(1024)" json:"filePath"`
	DocumentType DocumentType `gorm:"type:varchar(32);index;not null;default:other" json:"documentType"`
	Processed    bool         `gorm:"not null;default:false" json:"processed"`
	VectorCount  int          `gorm:"not null;default:0" json:"vectorCount"`
	FileSize     int64        `json:"fileSize"`
	PageCount    int          `json:"pageCount"`
	UploadedAt   time.Time    `gorm:"autoCreateTime" json:"uploadedAt"`
	ProcessedAt  *time.Time   `json:"processedAt"`
}

func (Document) TableName() string {
	return "documents"
}

// IsReady 当且仅当文档已处理且至少有一个分块时为 true。
func (d Document) IsReady() bool {
	return d.Processed && d.VectorCount > 0
}
