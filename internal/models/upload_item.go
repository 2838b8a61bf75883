package models

// UploadStatus represents the lifecycle state of a simulated upload.
type UploadStatus string

const (
	UploadStatusUploading  UploadStatus = "uploading"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusComplete   UploadStatus = "complete"
	UploadStatusError      UploadStatus = "error"
)

// Terminal reports whether no automatic transition leaves the status.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusComplete || s == UploadStatusError
}

// Valid reports whether s is one of the four known statuses.
func (s UploadStatus) Valid() bool {
	switch s {
	case UploadStatusUploading, UploadStatusProcessing, UploadStatusComplete, UploadStatusError:
		return true
	}
	return false
}

// UploadItem is one user-submitted file undergoing simulated processing.
type UploadItem struct {
	ID           string       `json:"id" msgpack:"id"`
	Name         string       `json:"name" msgpack:"name"`
	SizeBytes    int64        `json:"sizeBytes" msgpack:"sizeBytes"`
	MimeType     string       `json:"mimeType" msgpack:"mimeType"`
	Kind         FileKind     `json:"kind" msgpack:"kind"`
	SizeLabel    string       `json:"sizeLabel" msgpack:"sizeLabel"`
	Progress     int          `json:"progress" msgpack:"progress"` // 0-100
	Status       UploadStatus `json:"status" msgpack:"status"`
	ErrorMessage string       `json:"errorMessage,omitempty" msgpack:"errorMessage,omitempty"`
}

// NewUploadItem creates an UploadItem in uploading status with zero progress.
func NewUploadItem(id string, file FileDescriptor) *UploadItem {
	return &UploadItem{
		ID:        id,
		Name:      file.Name,
		SizeBytes: file.Size,
		MimeType:  file.Type,
		Kind:      KindOf(file.Type),
		SizeLabel: FormatSize(file.Size),
		Progress:  0,
		Status:    UploadStatusUploading,
	}
}
