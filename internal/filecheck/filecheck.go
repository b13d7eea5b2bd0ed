// Package filecheck validates bill files before upload.
package filecheck

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/billix-app/billix/internal/errs"
	"github.com/gabriel-vasile/mimetype"
)

// Size bounds in bytes, inclusive.
const (
	MinSize = 100
	MaxSize = 10 * 1024 * 1024
)

// allowed maps an accepted extension to the content types its bytes may sniff as.
var allowed = map[string][]string{
	"pdf":  {"application/pdf"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"png":  {"image/png"},
	"heic": {"image/heic", "image/heic-sequence", "image/heif", "image/heif-sequence"},
}

var (
	pdfMagic  = []byte("%PDF")
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// signature reports whether data starts with the magic bytes of ext.
func signature(ext string, data []byte) bool {
	switch ext {
	case "pdf":
		return bytes.HasPrefix(data, pdfMagic)
	case "png":
		return bytes.HasPrefix(data, pngMagic)
	case "jpg", "jpeg":
		return bytes.HasPrefix(data, jpegMagic)
	case "heic":
		return len(data) >= 8 && string(data[4:8]) == "ftyp"
	}
	return false
}

// Validation failures. Each one matches errs.ErrValidation.
var (
	ErrUnsupportedType   = fmt.Errorf("%w: unsupported file type", errs.ErrValidation)
	ErrTooSmall          = fmt.Errorf("%w: file too small", errs.ErrValidation)
	ErrTooLarge          = fmt.Errorf("%w: file too large", errs.ErrValidation)
	ErrSignatureMismatch = fmt.Errorf("%w: file content does not match its extension", errs.ErrValidation)
)

// Result describes an accepted file.
type Result struct {
	Ext      string
	MIMEType string
}

// Validate checks extension, size and content signature of a file.
func Validate(name string, data []byte) (Result, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	want, ok := allowed[ext]
	if !ok {
		return Result{}, ErrUnsupportedType
	}
	switch {
	case len(data) < MinSize:
		return Result{}, ErrTooSmall
	case len(data) > MaxSize:
		return Result{}, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	if !signature(ext, data) {
		return Result{}, fmt.Errorf("%w (detected %s)", ErrSignatureMismatch, mt.String())
	}
	// mimetype only names the part; the magic bytes decide acceptance
	for _, w := range want {
		if mt.Is(w) {
			return Result{Ext: ext, MIMEType: w}, nil
		}
	}
	return Result{Ext: ext, MIMEType: want[0]}, nil
}
