package httputil

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vidtube/apperr"
)

// Spool holds uploaded file parts copied to local temporary files. The media
// adapter removes a file once it has been uploaded; Cleanup removes whatever
// is left, so handlers defer it on every path.
type Spool struct {
	paths map[string]string
}

// SpoolFiles copies the named multipart file parts into dir. Missing parts
// are skipped. Non-multipart requests yield an empty spool.
func SpoolFiles(r *http.Request, dir string, fields ...string) (*Spool, error) {
	s := &Spool{paths: make(map[string]string)}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return s, nil
	}
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(MultipartMemory); err != nil {
			return nil, apperr.Validation("invalid multipart body")
		}
	}

	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		path, err := saveTemp(headers[0], dir)
		if err != nil {
			s.Cleanup()
			return nil, apperr.Internal("failed to buffer upload", fmt.Errorf("%s: %w", field, err))
		}
		s.paths[field] = path
	}
	return s, nil
}

// Path returns the local file for field, or "" when the part was absent.
func (s *Spool) Path(field string) string {
	if s == nil {
		return ""
	}
	return s.paths[field]
}

// Cleanup removes every spooled file that still exists.
func (s *Spool) Cleanup() {
	if s == nil {
		return
	}
	for field, path := range s.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			continue
		}
		delete(s.paths, field)
	}
}

func saveTemp(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(filepath.Base(fh.Filename)))
	if len(ext) > 10 {
		ext = ""
	}
	dst, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
