package adapter

import "context"

type UploadResult struct {
	URL      string
	PublicID string
	Width    int
	Height   int
}

// ImageStore is the opaque CDN boundary. Upload must return a publicly
// HTTPS-fetchable URL suitable for the Graph API image_url parameter.
type ImageStore interface {
	Upload(ctx context.Context, data []byte, folder string) (*UploadResult, error)
	Delete(ctx context.Context, publicID string) error
}
