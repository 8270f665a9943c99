package render

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
	"time"

	"story-scheduler/internal/config"
	"story-scheduler/internal/domain"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(config.RenderConfig{})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func TestRenderProducesSquarePNG(t *testing.T) {
	r := newTestRenderer(t)
	posted := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

	res, err := r.Render(Request{
		Text:           "Shipping the scheduler today.\nLong awaited.",
		AuthorName:     "Ada Lovelace",
		AuthorUsername: "ada",
		PostedAt:       &posted,
		Theme:          ThemeShinyPurple,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Width != OutputSize || res.Height != OutputSize {
		t.Errorf("expected %dx%d, got %dx%d", OutputSize, OutputSize, res.Width, res.Height)
	}
	img, err := png.Decode(bytes.NewReader(res.PNG))
	if err != nil {
		t.Fatalf("output is not decodable png: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != OutputSize || b.Dy() != OutputSize {
		t.Errorf("decoded size %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderDeterministic(t *testing.T) {
	r := newTestRenderer(t)
	req := Request{
		Text:           "same input, same pixels",
		AuthorName:     "Grace",
		AuthorUsername: "grace",
		Theme:          ThemeForestGlow,
	}
	a, err := r.Render(req)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	b, err := r.Render(req)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if !bytes.Equal(a.PNG, b.PNG) {
		t.Error("identical inputs produced different images")
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	r := newTestRenderer(t)

	t.Run("unknown theme", func(t *testing.T) {
		_, err := r.Render(Request{Text: "hi", AuthorName: "A", Theme: "NEON_VOID"})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := r.Render(Request{Text: "   ", AuthorName: "A", Theme: ThemeShinyPurple})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("undecodable avatar falls back to placeholder", func(t *testing.T) {
		_, err := r.Render(Request{
			Text:        "hello",
			AuthorName:  "Bea",
			AvatarImage: []byte("not an image"),
			Theme:       ThemeMangoJuice,
		})
		if err != nil {
			t.Errorf("expected placeholder fallback, got %v", err)
		}
	})
}

func TestDefaultTheme(t *testing.T) {
	sunday := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	if got := DefaultTheme(sunday); got != ThemeMangoJuice {
		t.Errorf("sunday: got %s", got)
	}
	monday := sunday.AddDate(0, 0, 1)
	if got := DefaultTheme(monday); got != ThemeShinyPurple {
		t.Errorf("monday: got %s", got)
	}
}
