//go:build linux

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

// openSerialPort opens the ASIC UART character device in raw 8N1 mode at
// the driver's initial baud rate (§6: 25_000_000/((DIV+1)*8), DIV=26 ⇒
// 115_749 bps — closest termios rate is B115200, which the driver's own
// documented discrepancy between 115_749 and 115_740 already covers).
//
// No serial library appears anywhere in the retrieved corpus, and the
// standard library has no portable serial API, so this talks to the tty
// directly via golang.org/x/sys/unix (already a transitive dependency of
// modernc.org/sqlite) rather than inventing a dependency the corpus never
// shows.
func openSerialPort(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	fd := int(f.Fd())
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("get termios for %s: %w", path, err)
	}

	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0
	termios.Ispeed = unix.B115200
	termios.Ospeed = unix.B115200

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, termios); err != nil {
		f.Close()
		return nil, fmt.Errorf("set termios for %s: %w", path, err)
	}

	// Best effort: exclusive access is a nicety, not a correctness requirement.
	_ = unix.IoctlSetInt(fd, unix.TIOCEXCL, 0)

	return f, nil
}
