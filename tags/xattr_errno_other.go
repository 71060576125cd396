//go:build !windows && !linux
// +build !windows,!linux

package tags

import "golang.org/x/sys/unix"

// BSD-derived systems report a missing extended attribute as ENOATTR.
const errNoAttr = unix.ENOATTR
