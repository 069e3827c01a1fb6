// Package capture saves full-page screenshots of rendered pages.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/nfnt/resize"
)

// Config controls where screenshots go.
type Config struct {
	Dir    string `json:"dir" yaml:"dir"`
	Prefix string `json:"prefix" yaml:"prefix"`
	// ThumbnailWidth is the thumbnail width in pixels; 0 disables thumbnails.
	ThumbnailWidth int `json:"thumbnail_width" yaml:"thumbnail_width"`
}

// DefaultConfig returns capture defaults.
func DefaultConfig() Config {
	return Config{
		Dir:            filepath.Join("reports", "screenshots"),
		Prefix:         "login_page",
		ThumbnailWidth: 320,
	}
}

// Capture lists the files written for one screenshot.
type Capture struct {
	Path          string `json:"path"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

// Filename returns <prefix>_<YYYYMMDD_HHMMSS>.png.
func Filename(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultConfig().Prefix
	}
	return fmt.Sprintf("%s_%s.png", prefix, t.Format("20060102_150405"))
}

// Screenshot captures the full scrollable page as PNG.
func Screenshot(ctx context.Context, page *rod.Page) ([]byte, error) {
	if page == nil {
		return nil, fmt.Errorf("no page to capture")
	}
	data, err := page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return data, nil
}

// Save captures page and writes it under config.Dir.
func Save(ctx context.Context, page *rod.Page, config Config, t time.Time) (*Capture, error) {
	data, err := Screenshot(ctx, page)
	if err != nil {
		return nil, err
	}
	return Write(data, config, t)
}

// Write stores PNG data and its thumbnail.
func Write(data []byte, config Config, t time.Time) (*Capture, error) {
	if config.Dir == "" {
		config.Dir = DefaultConfig().Dir
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	path := filepath.Join(config.Dir, Filename(config.Prefix, t))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write screenshot: %w", err)
	}

	bounds := img.Bounds()
	c := &Capture{
		Path:   path,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	if config.ThumbnailWidth > 0 {
		thumbPath := strings.TrimSuffix(path, ".png") + "_thumb.png"
		if err := writeThumbnail(thumbPath, img, config.ThumbnailWidth); err != nil {
			return nil, err
		}
		c.ThumbnailPath = thumbPath
	}

	return c, nil
}

// Thumbnail scales img to width, keeping the aspect ratio. Images already
// narrower than width are returned unchanged.
func Thumbnail(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() <= width {
		return img
	}
	return resize.Resize(uint(width), 0, img, resize.Lanczos3)
}

func writeThumbnail(path string, img image.Image, width int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, Thumbnail(img, width)); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}
