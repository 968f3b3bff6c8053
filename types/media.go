package types

import "time"

// MediaType is the coarse kind of an uploaded file.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaFile describes an uploaded file stored under the public uploads tree.
// Files are identified on disk by Filename.
type MediaFile struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	URL          string    `json:"url"`
	Type         MediaType `json:"type"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	ProjectID    string    `json:"projectId"`
	UploadedAt   time.Time `json:"uploadedAt"`
}
