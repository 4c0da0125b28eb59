// Package storage keeps uploaded audio in a file tree addressed by relative keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

const defaultAudioContentType = "audio/webm"

var (
	// ErrBlobExists is returned when writing to a key that is already taken.
	ErrBlobExists = errors.New("storage: blob already exists")
	// ErrBlobNotFound is returned when reading a key that does not exist.
	ErrBlobNotFound = errors.New("storage: blob not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the root.
	ErrInvalidKey = errors.New("storage: invalid blob key")
)

// Blob is an opened stored object.
type Blob struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// BlobStore writes and reads blobs on an afero filesystem.
type BlobStore struct {
	fs afero.Fs
}

// NewBlobStore wraps fs. Keys are interpreted relative to its root.
func NewBlobStore(fs afero.Fs) (*BlobStore, error) {
	if fs == nil {
		return nil, errors.New("storage: filesystem is required")
	}
	return &BlobStore{fs: fs}, nil
}

// NewDirectoryBlobStore stores blobs under dir on the host filesystem.
func NewDirectoryBlobStore(dir string) (*BlobStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: directory is required")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return NewBlobStore(afero.NewBasePathFs(osFs, dir))
}

// Put writes body under key without overwriting and returns the stored key.
func (s *BlobStore) Put(ctx context.Context, key string, body io.Reader) (string, error) {
	cleanKey, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dir := path.Dir(cleanKey); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("storage: create directory: %w", err)
		}
	}

	file, err := s.fs.OpenFile(cleanKey, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) || errors.Is(err, afero.ErrFileExists) {
			return "", fmt.Errorf("%w: %s", ErrBlobExists, cleanKey)
		}
		return "", fmt.Errorf("storage: open %s: %w", cleanKey, err)
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		return "", fmt.Errorf("storage: write %s: %w", cleanKey, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("storage: close %s: %w", cleanKey, err)
	}
	return cleanKey, nil
}

// Open returns the blob stored under key. The caller closes Body.
func (s *BlobStore) Open(ctx context.Context, key string) (Blob, error) {
	cleanKey, err := normalizeKey(key)
	if err != nil {
		return Blob{}, err
	}
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	file, err := s.fs.Open(cleanKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Blob{}, fmt.Errorf("%w: %s", ErrBlobNotFound, cleanKey)
		}
		return Blob{}, fmt.Errorf("storage: open %s: %w", cleanKey, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return Blob{}, fmt.Errorf("storage: stat %s: %w", cleanKey, err)
	}
	return Blob{
		Key:         cleanKey,
		ContentType: ContentTypeForKey(cleanKey),
		Size:        info.Size(),
		Body:        file,
	}, nil
}

// Delete removes the blob. Missing blobs are ignored.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	cleanKey, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(cleanKey); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", cleanKey, err)
	}
	return nil
}

// ContentTypeForKey derives a MIME type from the key extension.
func ContentTypeForKey(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".webm":
		return "audio/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return defaultAudioContentType
}

// ExtensionForContentType maps an audio MIME type, parameters allowed, to the key
// extension ContentTypeForKey recognises. Unknown types return "".
func ExtensionForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/wav", "audio/wave", "audio/x-wav":
		return "wav"
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/flac", "audio/x-flac":
		return "flac"
	}
	return ""
}

func normalizeKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + trimmed)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return cleaned, nil
}
