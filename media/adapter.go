// Package media moves spooled uploads into object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidtube/logging"
)

// ErrNoFile is returned when Upload is called without a local path.
var ErrNoFile = errors.New("no file to upload")

// Asset describes an uploaded object.
type Asset struct {
	URL             string
	Key             string
	ContentType     string
	Size            int64
	DurationSeconds *float64
}

// Uploader moves a spooled local file into object storage. *Adapter is the
// production implementation.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (Asset, error)
}

// Prober extracts a duration from a local media file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Adapter uploads local files to an ObjectStore and builds their public URLs.
type Adapter struct {
	Store  ObjectStore
	Prober Prober
	// Bucket and PublicBaseURL form the object's public URL.
	Bucket        string
	PublicBaseURL string

	now func() time.Time
}

func NewAdapter(store ObjectStore, prober Prober, bucket, publicBaseURL string) *Adapter {
	return &Adapter{
		Store:         store,
		Prober:        prober,
		Bucket:        bucket,
		PublicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		now:           time.Now,
	}
}

// Upload stores the file at localPath and removes it afterwards, whether or
// not the upload succeeded.
func (a *Adapter) Upload(ctx context.Context, localPath string) (Asset, error) {
	if localPath == "" {
		return Asset{}, ErrNoFile
	}
	defer func() {
		if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(ctx).Warn("failed to remove spooled file", "path", localPath, "error", err)
		}
	}()

	f, err := os.Open(localPath)
	if err != nil {
		return Asset{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Asset{}, fmt.Errorf("stat %s: %w", localPath, err)
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	contentType, err := sniff(f, ext)
	if err != nil {
		return Asset{}, err
	}

	asset := Asset{
		Key:         a.key(ext),
		ContentType: contentType,
		Size:        info.Size(),
	}

	if a.Prober != nil && isTimedMedia(contentType) {
		if secs, err := a.Prober.Duration(ctx, localPath); err != nil {
			logging.FromContext(ctx).Debug("duration probe failed", "path", localPath, "error", err)
		} else {
			asset.DurationSeconds = &secs
		}
	}

	if err := a.Store.Put(ctx, asset.Key, f, asset.Size, contentType); err != nil {
		return Asset{}, err
	}
	asset.URL = a.URL(asset.Key)
	return asset, nil
}

// URL returns the public location of key.
func (a *Adapter) URL(key string) string {
	if a.PublicBaseURL != "" {
		return a.PublicBaseURL + "/" + key
	}
	return "/storage/" + a.Bucket + "/" + key
}

func (a *Adapter) key(ext string) string {
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	t := now().UTC()
	return fmt.Sprintf("%04d/%02d/%s%s", t.Year(), int(t.Month()), uuid.NewString(), ext)
}

// sniff detects the content type from the first bytes of f and rewinds it.
// Generic results fall back to the file extension.
func sniff(f *os.File, ext string) (string, error) {
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind: %w", err)
	}

	contentType := http.DetectContentType(head[:n])
	if contentType == "application/octet-stream" || strings.HasPrefix(contentType, "text/plain") {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			contentType = byExt
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	return contentType, nil
}

func isTimedMedia(contentType string) bool {
	return strings.HasPrefix(contentType, "video/") || strings.HasPrefix(contentType, "audio/")
}
