package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kikiluvv/retroclip/pkg/util"
)

// DefaultOutputName is used when the capture was transcoded to MP4.
const DefaultOutputName = "retroclip-export.mp4"

// Downloader hands the finished container to the user.
type Downloader interface {
	Deliver(ctx context.Context, name string, blob []byte) error
}

// OutputName keeps base when the capture was transcoded and otherwise swaps
// its extension for the captured container's.
func OutputName(base string, transcoded bool, ext string) string {
	if base == "" {
		base = DefaultOutputName
	}
	if transcoded || ext == "" {
		return base
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

// FileDownloader writes exports into Dir.
type FileDownloader struct {
	Dir string
}

func (d FileDownloader) Deliver(ctx context.Context, name string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := util.EnsureDir(dir); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := util.WriteFileAtomic(path, blob); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Path returns where Deliver writes name.
func (d FileDownloader) Path(name string) string {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, filepath.Base(name))
}

// MemoryDownloader keeps the last delivered export in memory.
type MemoryDownloader struct {
	mu   sync.Mutex
	name string
	blob []byte
}

func (d *MemoryDownloader) Deliver(_ context.Context, name string, blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name, d.blob = name, blob
	return nil
}

// Get returns the delivered export, if any.
func (d *MemoryDownloader) Get() (string, []byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name, d.blob, d.blob != nil
}
