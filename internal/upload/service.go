// Package upload stores cat photos in the local upload directory.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"catcharity/internal/mediaurl"
)

var (
	ErrFileTooLarge   = errors.New("upload file too large")
	ErrDisallowedType = errors.New("disallowed upload mime type")
	ErrExecutableFile = errors.New("executable files are not allowed")
	ErrInvalidImage   = errors.New("file is not a decodable image")
	ErrImageTooLarge  = errors.New("image dimensions too large")
	ErrInvalidPath    = errors.New("invalid upload path")
)

// allowedTypes maps accepted content types to the extension used when the
// client did not send a usable one.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

type Stored struct {
	Filename  string
	URL       string
	MimeType  string
	SizeBytes int64
	Width     int
	Height    int
}

type Service struct {
	rootDir        string
	maxUploadBytes int64
	maxPixels      int64
}

func NewService(rootDir string, maxUploadBytes, maxPixels int64) (*Service, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be > 0")
	}
	if maxPixels <= 0 {
		return nil, fmt.Errorf("max image pixels must be > 0")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &Service{
		rootDir:        rootDir,
		maxUploadBytes: maxUploadBytes,
		maxPixels:      maxPixels,
	}, nil
}

func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

func (s *Service) RootDir() string {
	return s.rootDir
}

// Save validates src as an image and writes it under a generated
// cat-<millis>-<rand>.<ext> name. Nothing is left on disk when it fails.
func (s *Service) Save(_ context.Context, originalName string, src io.Reader) (*Stored, error) {
	tmpFile, err := os.CreateTemp(s.rootDir, ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temporary upload file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	sniff := make([]byte, 512)
	sniffN, sniffErr := io.ReadFull(src, sniff)
	if sniffErr != nil && sniffErr != io.EOF && sniffErr != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading upload data: %w", sniffErr)
	}
	sniff = sniff[:sniffN]

	if isExecutableSignature(sniff) {
		return nil, ErrExecutableFile
	}

	mimeType := detectMimeType(sniff)
	if _, ok := allowedTypes[mimeType]; !ok {
		return nil, ErrDisallowedType
	}

	fullReader := io.MultiReader(bytes.NewReader(sniff), src)
	written, err := io.Copy(tmpFile, io.LimitReader(fullReader, s.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("writing upload file: %w", err)
	}
	if written > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding upload file: %w", err)
	}
	width, height, err := checkImage(tmpFile, s.maxPixels)
	if err != nil {
		return nil, err
	}

	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("closing temporary upload file: %w", err)
	}

	filename := generateFilename(originalName, mimeType, time.Now())
	if err := os.Rename(tmpPath, filepath.Join(s.rootDir, filename)); err != nil {
		return nil, fmt.Errorf("finalizing upload file: %w", err)
	}

	return &Stored{
		Filename:  filename,
		URL:       mediaurl.Photo(filename),
		MimeType:  mimeType,
		SizeBytes: written,
		Width:     width,
		Height:    height,
	}, nil
}

// Delete removes the file behind a stored photo URL. Missing files are not
// an error.
func (s *Service) Delete(photoURL string) error {
	filename, ok := mediaurl.ParseFilename(photoURL)
	if !ok {
		return ErrInvalidPath
	}

	err := os.Remove(filepath.Join(s.rootDir, filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting upload file: %w", err)
	}

	return nil
}

// generateFilename keeps the client's image extension when it has one and
// falls back to the extension of the sniffed type.
func generateFilename(originalName, mimeType string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(originalName)))
	if _, ok := imageExtensions[ext]; !ok {
		ext = allowedTypes[mimeType]
	}
	return fmt.Sprintf("cat-%d-%d%s", now.UnixMilli(), rand.IntN(1_000_000_000), ext)
}

func detectMimeType(sniff []byte) string {
	if len(sniff) == 0 {
		return "application/octet-stream"
	}

	return trimMimeParams(http.DetectContentType(sniff))
}

func isExecutableSignature(sniff []byte) bool {
	if len(sniff) < 2 {
		return false
	}

	if sniff[0] == 'M' && sniff[1] == 'Z' {
		return true // PE/COFF (Windows)
	}
	if len(sniff) >= 4 {
		if bytes.Equal(sniff[:4], []byte{0x7f, 'E', 'L', 'F'}) {
			return true // ELF
		}

		machoMagics := [][]byte{
			{0xfe, 0xed, 0xfa, 0xce},
			{0xce, 0xfa, 0xed, 0xfe},
			{0xfe, 0xed, 0xfa, 0xcf},
			{0xcf, 0xfa, 0xed, 0xfe},
			{0xca, 0xfe, 0xba, 0xbe},
			{0xbe, 0xba, 0xfe, 0xca},
		}
		for _, magic := range machoMagics {
			if bytes.Equal(sniff[:4], magic) {
				return true
			}
		}
	}

	if sniff[0] == '#' && sniff[1] == '!' {
		return true // shebang scripts
	}

	return false
}

func trimMimeParams(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
