package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"story-scheduler/internal/domain/ports/adapter"
)

const defaultFCMEndpoint = "https://fcm.googleapis.com/fcm/send"

var _ adapter.PushSender = (*FCMPushSender)(nil)

// FCMPushSender delivers pushes through the FCM legacy HTTP API using a
// server key. One call delivers to one device token.
type FCMPushSender struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewFCMPushSender(serverKey string) *FCMPushSender {
	return &FCMPushSender{
		endpoint:  defaultFCMEndpoint,
		serverKey: serverKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (s *FCMPushSender) SendPush(ctx context.Context, msg adapter.PushMessage) (string, error) {
	body, err := json.Marshal(fcmRequest{
		To: msg.Token,
		Notification: fcmNotification{
			Title: msg.Title,
			Body:  msg.Body,
			Image: msg.ImageURL,
		},
		Data: msg.Data,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fcm send failed: status %d", resp.StatusCode)
	}

	var out fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Failure > 0 || len(out.Results) == 0 {
		reason := "no results"
		if len(out.Results) > 0 {
			reason = out.Results[0].Error
		}
		return "", fmt.Errorf("fcm send rejected: %s", reason)
	}
	return out.Results[0].MessageID, nil
}
