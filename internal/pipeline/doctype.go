package pipeline

import (
	"drone-helpdesk-go/internal/model"
	"strings"
)

// DocumentTypeForFilename 根据文件名推断法规类别。
// 文件名同时包含 a1 与 a3 时视为 A1/A3 合并文档，归入 A1；单独的 a1 不做推断。
func DocumentTypeForFilename(filename string) model.DocumentType {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "a1") && strings.Contains(name, "a3"):
		return model.DocumentTypeA1
	case strings.Contains(name, "a2"):
		return model.DocumentTypeA2
	case strings.Contains(name, "a3"):
		return model.DocumentTypeA3
	case strings.Contains(name, "faq"):
		return model.DocumentTypeFAQ
	case strings.Contains(name, "manual"):
		return model.DocumentTypeManual
	default:
		return model.DocumentTypeOther
	}
}
