package tags

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/projdex/projdex/internal/fileutil"
)

// SidecarFileName is the per-directory tag file used by SidecarSource.
const SidecarFileName = ".projdex-tags"

// SidecarSource stores tags in a plain text file inside the tagged
// directory, one tag per line. It works on every platform and survives
// copies and network filesystems, at the cost of a visible file.
type SidecarSource struct{}

func NewSidecarSource() *SidecarSource {
	return &SidecarSource{}
}

func (s *SidecarSource) ReadTags(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tag file: %w", err)
	}
	return Normalize(strings.Split(string(data), "\n")), nil
}

func (s *SidecarSource) WriteTags(ctx context.Context, path string, tags []string) error {
	target := sidecarPath(path)

	norm := Normalize(tags)
	if len(norm) == 0 {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove tag file: %w", err)
		}
		return nil
	}

	content := strings.Join(norm, "\n") + "\n"
	if err := fileutil.WriteFileAtomic(target, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write tag file: %w", err)
	}
	return nil
}

func sidecarPath(dir string) string {
	return filepath.Join(dir, SidecarFileName)
}
