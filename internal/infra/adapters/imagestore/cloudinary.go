package imagestore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"story-scheduler/internal/domain/ports/adapter"
)

var _ adapter.ImageStore = (*CloudinaryStore)(nil)

// CloudinaryStore uploads rendered PNGs through Cloudinary's signed upload
// API and returns a public HTTPS delivery URL.
type CloudinaryStore struct {
	baseURL   string
	cloudName string
	apiKey    string
	apiSecret string
	client    *http.Client
	now       func() time.Time
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret string) *CloudinaryStore {
	return &CloudinaryStore{
		baseURL:   "https://api.cloudinary.com",
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// sign produces the Cloudinary request signature: the sorted parameter
// string concatenated with the API secret, hashed with SHA-1.
func (s *CloudinaryStore) sign(paramsToSign string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(paramsToSign+s.apiSecret)))
}

func (s *CloudinaryStore) Upload(ctx context.Context, data []byte, folder string) (*adapter.UploadResult, error) {
	timestamp := fmt.Sprintf("%d", s.now().Unix())
	signature := s.sign(fmt.Sprintf("folder=%s&timestamp=%s", folder, timestamp))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"api_key":   s.apiKey,
		"timestamp": timestamp,
		"folder":    folder,
		"signature": signature,
	} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", s.baseURL, s.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out cloudinaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("cloudinary upload failed: %s", out.Error.Message)
	}
	if out.SecureURL == "" {
		return nil, fmt.Errorf("cloudinary upload failed: status %d", resp.StatusCode)
	}
	return &adapter.UploadResult{
		URL:      out.SecureURL,
		PublicID: out.PublicID,
		Width:    out.Width,
		Height:   out.Height,
	}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, publicID string) error {
	timestamp := fmt.Sprintf("%d", s.now().Unix())
	signature := s.sign(fmt.Sprintf("public_id=%s&timestamp=%s", publicID, timestamp))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"api_key":   s.apiKey,
		"timestamp": timestamp,
		"public_id": publicID,
		"signature": signature,
	} {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/destroy", s.baseURL, s.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if out.Error != nil {
		return fmt.Errorf("cloudinary destroy failed: %s", out.Error.Message)
	}
	return nil
}
