// Package content holds the value types passed between selectors and posters.
package content

import (
	"path/filepath"
	"strings"
)

// Kind is the media classification used for grouping.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindGif
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindGif:
		return "gif"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Media is a reference to a single file with its classification.
type Media struct {
	Source string
	Kind   Kind
}

// NewMedia classifies path by its extension.
func NewMedia(path string) Media {
	return Media{Source: path, Kind: KindOf(path)}
}

// KindOf maps a file extension to a Kind. The file contents are never read.
// GIFs are grouped as video.
func KindOf(path string) Kind {
	switch extension(path) {
	case ".png", ".jpeg", ".jpg":
		return KindImage
	case ".mp4", ".gif":
		return KindVideo
	default:
		return KindDocument
	}
}

// DeliveryKind is the kind a transport should send this media as.
// It differs from Kind only for GIFs, which are sent through the document path
// so the provider does not convert them.
func (m Media) DeliveryKind() Kind {
	if extension(m.Source) == ".gif" {
		return KindGif
	}
	return m.Kind
}

// Name returns the base name of the media file.
func (m Media) Name() string {
	return filepath.Base(m.Source)
}

// IsText reports whether path is a caption file.
func IsText(path string) bool {
	return extension(path) == ".txt"
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
