package tags

import "golang.org/x/sys/unix"

// Linux reports a missing extended attribute as ENODATA.
const errNoAttr = unix.ENODATA
