//go:build windows
// +build windows

package tags

import (
	"context"
	"errors"
)

const XattrName = "user.projdex.tags"

// XattrSource is unavailable on Windows; the sidecar source covers it.
type XattrSource struct{}

func NewXattrSource() *XattrSource {
	return &XattrSource{}
}

func (x *XattrSource) ReadTags(ctx context.Context, path string) ([]string, error) {
	return nil, errors.New("extended attributes are not supported on Windows")
}

func (x *XattrSource) WriteTags(ctx context.Context, path string, tags []string) error {
	return errors.New("extended attributes are not supported on Windows")
}
