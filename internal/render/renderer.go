// Package render turns a post-content snapshot and a theme id into a square
// Instagram-ready raster image. Output is deterministic for identical inputs.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"story-scheduler/internal/config"
	"story-scheduler/internal/domain"
)

// OutputSize is the fixed square target resolution.
const OutputSize = 1080

const (
	cardMargin   = 40
	cardPadding  = 44
	cardRadius   = 28
	avatarSize   = 84
	nameSize     = 36
	handleSize   = 28
	bodySize     = 34
	dateSize     = 24
	bodyLineGap  = 17 // 1.5 line height for bodySize
	maxBodyLines = 14
)

var (
	colInk       = color.NRGBA{R: 0x0f, G: 0x14, B: 0x19, A: 0xff}
	colMuted     = color.NRGBA{R: 0x53, G: 0x64, B: 0x71, A: 0xff}
	colCard      = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colAvatarBkg = color.NRGBA{R: 0x1d, G: 0xa1, B: 0xf2, A: 0xff}
)

type Request struct {
	Text           string
	AuthorName     string
	AuthorUsername string
	AvatarImage    []byte // optional, pre-fetched image bytes (any decodable format)
	PostedAt       *time.Time
	Theme          string
}

type Result struct {
	PNG    []byte
	Width  int
	Height int
}

type Renderer struct {
	regular *truetype.Font
	bold    *truetype.Font
}

// NewRenderer loads the configured TTF fonts, falling back to the embedded Go
// fonts when no paths are configured.
func NewRenderer(cfg config.RenderConfig) (*Renderer, error) {
	regular, err := loadFont(cfg.FontRegular, goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load regular font: %w", err)
	}
	bold, err := loadFont(cfg.FontBold, gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("load bold font: %w", err)
	}
	return &Renderer{regular: regular, bold: bold}, nil
}

func loadFont(path string, fallback []byte) (*truetype.Font, error) {
	data := fallback
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return freetype.ParseFont(data)
}

// Render lays the post out as a white card over the theme gradient and encodes
// the result as PNG. Layout and rendering failures are never retried here;
// retry policy lives at the queue layer.
func (r *Renderer) Render(req Request) (*Result, error) {
	if strings.TrimSpace(req.AuthorName) == "" || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("render: %w: text and author name are required", domain.ErrValidation)
	}
	theme, err := ThemeByName(req.Theme)
	if err != nil {
		return nil, fmt.Errorf("render: unknown theme %q: %w", req.Theme, err)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, OutputSize, OutputSize))
	fillGradient(canvas, theme)

	bodyFace := truetype.NewFace(r.regular, &truetype.Options{Size: bodySize})
	defer bodyFace.Close()

	cardWidth := OutputSize - 2*cardMargin
	innerWidth := cardWidth - 2*cardPadding
	lines := wrapText(req.Text, bodyFace, innerWidth)
	if len(lines) > maxBodyLines {
		lines = lines[:maxBodyLines]
		lines[maxBodyLines-1] += "…"
	}

	headerHeight := avatarSize
	bodyHeight := len(lines) * (bodySize + bodyLineGap)
	dateHeight := 0
	if req.PostedAt != nil {
		dateHeight = dateSize + 16
	}
	cardHeight := 2*cardPadding + headerHeight + 28 + bodyHeight + dateHeight
	if cardHeight > OutputSize-2*cardMargin {
		cardHeight = OutputSize - 2*cardMargin
	}
	cardTop := (OutputSize - cardHeight) / 2
	card := image.Rect(cardMargin, cardTop, cardMargin+cardWidth, cardTop+cardHeight)

	drawRoundedRect(canvas, card, cardRadius, colCard)
	r.drawAvatar(canvas, req, card.Min.X+cardPadding, card.Min.Y+cardPadding)

	textX := card.Min.X + cardPadding + avatarSize + 22
	if err := r.drawText(canvas, r.bold, nameSize, colInk, textX, card.Min.Y+cardPadding+34, req.AuthorName); err != nil {
		return nil, fmt.Errorf("render: draw author: %w", err)
	}
	if req.AuthorUsername != "" {
		if err := r.drawText(canvas, r.regular, handleSize, colMuted, textX, card.Min.Y+cardPadding+72, "@"+req.AuthorUsername); err != nil {
			return nil, fmt.Errorf("render: draw handle: %w", err)
		}
	}

	y := card.Min.Y + cardPadding + headerHeight + 28 + bodySize
	for _, line := range lines {
		if err := r.drawText(canvas, r.regular, bodySize, colInk, card.Min.X+cardPadding, y, line); err != nil {
			return nil, fmt.Errorf("render: draw body: %w", err)
		}
		y += bodySize + bodyLineGap
	}

	if req.PostedAt != nil {
		date := req.PostedAt.Format("Jan 2, 2006")
		if err := r.drawText(canvas, r.regular, dateSize, colMuted, card.Min.X+cardPadding, y+8, date); err != nil {
			return nil, fmt.Errorf("render: draw date: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return &Result{PNG: buf.Bytes(), Width: OutputSize, Height: OutputSize}, nil
}

// drawAvatar embeds the supplied avatar cropped to a circle, or a placeholder
// disc with the first letter of the display name.
func (r *Renderer) drawAvatar(dst *image.NRGBA, req Request, x, y int) {
	bounds := image.Rect(x, y, x+avatarSize, y+avatarSize)
	mask := &circleMask{c: image.Pt(x+avatarSize/2, y+avatarSize/2), r: avatarSize / 2}

	if len(req.AvatarImage) > 0 {
		if src, err := imaging.Decode(bytes.NewReader(req.AvatarImage)); err == nil {
			avatar := imaging.Fill(src, avatarSize, avatarSize, imaging.Center, imaging.Lanczos)
			draw.DrawMask(dst, bounds, avatar, image.Point{}, mask, bounds.Min, draw.Over)
			return
		}
		// undecodable avatar bytes fall through to the placeholder
	}

	draw.DrawMask(dst, bounds, &image.Uniform{C: colAvatarBkg}, image.Point{}, mask, bounds.Min, draw.Over)
	letter := strings.ToUpper(string([]rune(strings.TrimSpace(req.AuthorName))[0]))
	face := truetype.NewFace(r.bold, &truetype.Options{Size: 40})
	defer face.Close()
	w := font.MeasureString(face, letter).Ceil()
	_ = r.drawText(dst, r.bold, 40, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		x+(avatarSize-w)/2, y+avatarSize/2+14, letter)
}

func (r *Renderer) drawText(dst *image.NRGBA, f *truetype.Font, size float64, col color.NRGBA, x, y int, s string) error {
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(size)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(&image.Uniform{C: col})
	_, err := c.DrawString(s, freetype.Pt(x, y))
	return err
}

// wrapText splits text into lines fitting maxWidth, honoring embedded newlines.
func wrapText(text string, face font.Face, maxWidth int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		cur := words[0]
		for _, w := range words[1:] {
			cand := cur + " " + w
			if font.MeasureString(face, cand).Ceil() > maxWidth {
				lines = append(lines, cur)
				cur = w
				continue
			}
			cur = cand
		}
		lines = append(lines, cur)
	}
	return lines
}

func fillGradient(img *image.NRGBA, theme Theme) {
	b := img.Bounds()
	span := float64(b.Dx() + b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetNRGBA(x, y, theme.at(float64(x+y)/span))
		}
	}
}

func drawRoundedRect(dst *image.NRGBA, r image.Rectangle, radius int, col color.NRGBA) {
	mask := &roundedMask{rect: r, radius: radius}
	draw.DrawMask(dst, r, &image.Uniform{C: col}, image.Point{}, mask, r.Min, draw.Over)
}

// circleMask is an alpha mask for circle-cropping avatars.
type circleMask struct {
	c image.Point
	r int
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }
func (m *circleMask) Bounds() image.Rectangle {
	return image.Rect(m.c.X-m.r, m.c.Y-m.r, m.c.X+m.r, m.c.Y+m.r)
}
func (m *circleMask) At(x, y int) color.Color {
	dx, dy := x-m.c.X, y-m.c.Y
	if dx*dx+dy*dy <= m.r*m.r {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}

// roundedMask is an alpha mask for a rectangle with rounded corners.
type roundedMask struct {
	rect   image.Rectangle
	radius int
}

func (m *roundedMask) ColorModel() color.Model { return color.AlphaModel }
func (m *roundedMask) Bounds() image.Rectangle { return m.rect }
func (m *roundedMask) At(x, y int) color.Color {
	r := m.rect
	rad := m.radius
	inX := x >= r.Min.X+rad && x < r.Max.X-rad
	inY := y >= r.Min.Y+rad && y < r.Max.Y-rad
	if inX || inY {
		if image.Pt(x, y).In(r) {
			return color.Alpha{A: 0xff}
		}
		return color.Alpha{}
	}
	// corner regions: inside iff within radius of the nearest corner center
	cx := r.Min.X + rad
	if x >= r.Max.X-rad {
		cx = r.Max.X - rad - 1
	}
	cy := r.Min.Y + rad
	if y >= r.Max.Y-rad {
		cy = r.Max.Y - rad - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy <= rad*rad {
		return color.Alpha{A: 0xff}
	}
	return color.Alpha{}
}
