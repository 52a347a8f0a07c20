package media

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotVideo rejects input that is not a video file.
var ErrNotVideo = errors.New("not a video file")

var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".3gp":  "video/3gpp",
	".ogv":  "video/ogg",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
}

// DetectType returns the MIME type of path from its extension, falling back
// to sniffing the first bytes.
func DetectType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoExtensions[ext]; ok {
		return t, nil
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "video/") {
		return t, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

// ValidateInput accepts only existing video files.
func ValidateInput(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNotVideo)
	}

	t, err := DetectType(path)
	if err != nil {
		return fmt.Errorf("detect type: %w", err)
	}
	if !strings.HasPrefix(t, "video/") {
		return fmt.Errorf("%s (%s): %w", filepath.Base(path), t, ErrNotVideo)
	}
	return nil
}
