// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestTask asks the ingestion consumer to (re)index one regulatory PDF.
// Exactly one of ObjectName (MinIO) or LocalPath is expected to be set.
type IngestTask struct {
	TaskID     string `json:"task_id"`
	FileName   string `json:"file_name"`
	ObjectName string `json:"object_name,omitempty"`
	LocalPath  string `json:"local_path,omitempty"`
}
