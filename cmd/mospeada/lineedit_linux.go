//go:build linux

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// readInteractiveLine reads one line in raw terminal mode with cursor
// movement, word editing and history. Without a TTY it reads a plain line.
func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		return readPlainLine(prompt)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return readPlainLine(prompt)
	}
	raw := *oldState
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() { _ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState) }()

	fmt.Print(prompt)
	ed := newLineEditor(prompt, os.Stdout, lineHistory)
	var buf [16]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			done, err := ed.feed(b)
			if err != nil {
				return "", err
			}
			if done {
				line := ed.String()
				remember(line)
				return line, nil
			}
		}
	}
}
