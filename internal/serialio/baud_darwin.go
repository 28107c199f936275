//go:build darwin

package serialio

import (
	"golang.org/x/sys/unix"
)

func setBaud(fd int, baud int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TIOCGETA)
	if err != nil {
		return err
	}
	t.Ispeed = uint64(baud)
	t.Ospeed = uint64(baud)
	t.Cflag |= unix.CLOCAL | unix.CREAD
	return unix.IoctlSetTermios(fd, unix.TIOCSETA, t)
}
