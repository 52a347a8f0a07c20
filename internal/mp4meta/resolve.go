package mp4meta

import (
	"fmt"
	"os"
	"time"
)

// DateSource records where a resolved creation date came from.
type DateSource string

const (
	SourceMetadata DateSource = "mvhd"
	SourceModTime  DateSource = "mtime"
)

// Resolve returns the creation date of the media file at path, preferring
// the container's movie header and falling back to the file modification
// time when the header is absent or unusable.
func Resolve(path string) (time.Time, DateSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	buf, err := os.ReadFile(path)
	if err == nil {
		if r := FindCreationDate(buf); r.Found {
			return r.CreationDate, SourceMetadata, nil
		}
	}

	return info.ModTime(), SourceModTime, nil
}

// LocalDatetime formats t in loc as YYYY-MM-DDTHH:MM, the form the editor
// stores timestamp overlay values in.
func LocalDatetime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02T15:04")
}
