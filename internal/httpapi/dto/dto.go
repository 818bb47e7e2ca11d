// Package dto holds the JSON request/response shapes for the HTTP surface
// (§6), split the way the teacher splits request.go/response.go.
package dto

import "time"

type UploadResponse struct {
	ImageID      string `json:"imageId"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
}

type ImageResponse struct {
	ImageID     string    `json:"imageId"`
	Owner       string    `json:"owner"`
	MimeType    string    `json:"mimeType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	DownloadURL string    `json:"downloadUrl"`
}

type RotateRequest struct {
	Degrees int `json:"degrees" validate:"required,oneof=90 180 270"`
}

type FlipRequest struct {
	Horizontal bool `json:"horizontal"`
	Vertical   bool `json:"vertical"`
}

type ResizeRequest struct {
	Width  int `json:"width" validate:"omitempty,min=200,max=4000"`
	Height int `json:"height" validate:"omitempty,min=200,max=4000"`
}

type CompressRequest struct {
	Quality int `json:"quality" validate:"required,min=10,max=100"`
}

type RevisionResponse struct {
	RevisionID  string         `json:"revisionId"`
	DownloadURL string         `json:"downloadUrl"`
	Operation   string         `json:"operation"`
	Params      map[string]any `json:"params"`
}

type HistoryResponse struct {
	ImageID   string              `json:"imageId"`
	Revisions []RevisionResponse  `json:"revisions"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
