// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package imaging processes uploaded post images: orientation fix,
// downscaling, and re-encoding stripped of metadata.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // WebP decoder
)

const (
	// MaxImageWidth is the maximum stored width; wider uploads are scaled down.
	MaxImageWidth = 1200

	// JPEGQuality is the encoding quality for JPEG output.
	JPEGQuality = 85

	// MaxUploadSize caps accepted image uploads at 10 MB.
	MaxUploadSize = 10 << 20
)

// postImageDir is the subdirectory for post images under the upload root.
const postImageDir = "posts"

// Result describes a stored post image.
type Result struct {
	// Path is relative to the upload root, e.g. "posts/<uuid>.jpg".
	Path   string
	Width  int
	Height int
	Size   int64
}

// Processor handles post image uploads using pure Go libraries.
type Processor struct {
	uploadDir string
}

// NewProcessor creates a new image processor rooted at uploadDir.
func NewProcessor(uploadDir string) *Processor {
	return &Processor{uploadDir: uploadDir}
}

// SavePostImage decodes an uploaded image, applies the EXIF orientation,
// scales it down to MaxImageWidth if wider, and stores it re-encoded
// under a random name. Re-encoding drops EXIF metadata, including any
// location data the uploader's camera embedded.
func (p *Processor) SavePostImage(reader io.Reader) (*Result, error) {
	data, err := io.ReadAll(io.LimitReader(reader, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxUploadSize)
	}

	format := detectFormat(data)
	if format == "" {
		return nil, fmt.Errorf("unsupported image format")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	if img.Bounds().Dx() > MaxImageWidth {
		img = imaging.Resize(img, MaxImageWidth, 0, imaging.Lanczos)
	}

	encoded, ext, err := encodeImage(img, format)
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	name := uuid.New().String() + ext
	dir := filepath.Join(p.uploadDir, postImageDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), encoded, 0644); err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	bounds := img.Bounds()
	return &Result{
		Path:   path(postImageDir, name),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Size:   int64(len(encoded)),
	}, nil
}

// Delete removes a stored post image. The path must be one previously
// returned by SavePostImage; anything pointing outside the upload root
// is rejected.
func (p *Processor) Delete(relPath string) error {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if strings.Contains(clean, "..") || filepath.IsAbs(clean) {
		return fmt.Errorf("invalid image path")
	}

	if err := os.Remove(filepath.Join(p.uploadDir, clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

// IsSupportedType checks if a MIME type is accepted for upload.
func IsSupportedType(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

// DetectMimeType detects the MIME type of image data.
func DetectMimeType(data []byte) string {
	contentType := http.DetectContentType(data)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return contentType
}

// path joins with forward slashes regardless of platform, for storage
// in the database.
func path(parts ...string) string {
	return strings.Join(parts, "/")
}

// encodeImage encodes an image in its original format where pure Go
// supports it; WebP input comes back out as JPEG.
func encodeImage(img image.Image, format string) ([]byte, string, error) {
	var buf bytes.Buffer

	switch format {
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), ".png", nil
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), ".gif", nil
	default:
		// jpeg and webp
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), ".jpg", nil
	}
}

// detectFormat detects the image format from raw bytes.
func detectFormat(data []byte) string {
	contentType := http.DetectContentType(data)
	// Explicitly reject TIFF (CVE-2023-36308 in disintegration/imaging)
	if strings.Contains(contentType, "tiff") {
		return ""
	}
	switch {
	case strings.Contains(contentType, "jpeg"):
		return "jpeg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	default:
		return ""
	}
}
