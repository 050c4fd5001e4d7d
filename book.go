package aghpb

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ImageType is the image encoding requested from the API.
type ImageType string

const (
	// ImageTypePNG requests PNG images. It is the default.
	ImageTypePNG ImageType = "png"

	// ImageTypeJPEG requests JPEG images.
	ImageTypeJPEG ImageType = "jpeg"
)

// MIMEType returns the value sent in the Accept header.
func (t ImageType) MIMEType() string {
	return "image/" + string(t.orDefault())
}

func (t ImageType) orDefault() ImageType {
	if t == "" {
		return ImageTypePNG
	}
	return t
}

// ParseImageType parses "png", "jpeg" or "jpg", case-insensitively.
func ParseImageType(s string) (ImageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return ImageTypePNG, nil
	case "jpeg", "jpg":
		return ImageTypeJPEG, nil
	default:
		return "", fmt.Errorf("%w: unknown image type %q (want png or jpeg)", ErrIllegalUsage, s)
	}
}

// APIStatus is the decoded /nya response.
type APIStatus struct {
	Version string `json:"version"`
}

// APIInfo is the decoded /info response.
type APIInfo struct {
	APIVersion string `json:"api_version"`
	BookCount  int    `json:"book_count"`
}

// Book is a single anime girl holding a programming book.
//
// Books returned by Search carry metadata only; fetch the image with
// Client.Book. Books returned by the image endpoints carry the image bytes
// and the metadata sent in the Book-* response headers.
type Book struct {
	Type         ImageType `json:"type,omitempty"`
	Category     string    `json:"category"`
	CommitAuthor string    `json:"commit_author"`
	CommitHash   string    `json:"commit_hash"`
	CommitURL    string    `json:"commit_url"`
	Name         string    `json:"name"`
	DateAdded    string    `json:"date_added,omitempty"`
	Image        []byte    `json:"-"`
	SearchID     int       `json:"search_id"`
}

// HasImage reports whether the book carries image bytes.
func (b *Book) HasImage() bool {
	return len(b.Image) > 0
}

// ImageReader returns a reader over the image bytes.
func (b *Book) ImageReader() io.Reader {
	return bytes.NewReader(b.Image)
}

// SaveImage writes the image bytes to path, creating parent directories as
// needed. The file name must end in .png, .jpg or .jpeg.
func (b *Book) SaveImage(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedImageExtension, path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}

	if err := os.WriteFile(path, b.Image, 0o644); err != nil {
		return fmt.Errorf("saving image to %s: %w", path, err)
	}
	return nil
}
