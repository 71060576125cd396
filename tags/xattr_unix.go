//go:build !windows
// +build !windows

package tags

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// XattrName is the extended attribute holding the tag list, one tag per
// line. The "user." namespace keeps it writable without privileges.
const XattrName = "user.projdex.tags"

// XattrSource stores tags in an extended attribute on the directory
// itself. Invisible to directory listings and carried by most local
// filesystems, but not by all network mounts.
type XattrSource struct{}

func NewXattrSource() *XattrSource {
	return &XattrSource{}
}

func (x *XattrSource) ReadTags(ctx context.Context, path string) ([]string, error) {
	size, err := unix.Getxattr(path, XattrName, nil)
	if err != nil {
		if errors.Is(err, errNoAttr) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tag attribute: %w", err)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Getxattr(path, XattrName, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag attribute: %w", err)
	}
	return Normalize(strings.Split(string(buf[:n]), "\n")), nil
}

func (x *XattrSource) WriteTags(ctx context.Context, path string, tags []string) error {
	norm := Normalize(tags)
	if len(norm) == 0 {
		if err := unix.Removexattr(path, XattrName); err != nil && !errors.Is(err, errNoAttr) {
			return fmt.Errorf("failed to clear tag attribute: %w", err)
		}
		return nil
	}

	value := []byte(strings.Join(norm, "\n"))
	if err := unix.Setxattr(path, XattrName, value, 0); err != nil {
		return fmt.Errorf("failed to write tag attribute: %w", err)
	}
	return nil
}
