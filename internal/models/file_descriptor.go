package models

import (
	"math"
	"strconv"
	"strings"
)

// FileDescriptor is the metadata of a selected or dropped file.
// File contents are never read.
type FileDescriptor struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"` // MIME type, may be empty
}

// FileKind groups MIME types for display.
type FileKind string

const (
	FileKindImage    FileKind = "image"
	FileKindPDF      FileKind = "pdf"
	FileKindDocument FileKind = "document"
)

// KindOf classifies a MIME type.
func KindOf(mimeType string) FileKind {
	switch {
	case strings.Contains(mimeType, "image"):
		return FileKindImage
	case strings.Contains(mimeType, "pdf"):
		return FileKindPDF
	default:
		return FileKindDocument
	}
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count using 1024-based units with at most two
// decimals, e.g. "500 Bytes", "1.5 KB", "2.25 MB".
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}

	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
