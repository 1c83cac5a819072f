package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var stdinReader = bufio.NewReader(os.Stdin)

// readPlainLine reads a line from stdin. EOF with no pending text is
// returned as io.EOF.
func readPlainLine(prompt string) (string, error) {
	if stdinIsTTY() {
		fmt.Print(prompt)
	}
	s, err := stdinReader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && s != "" {
			return trimTrailingNewline(s), nil
		}
		return "", err
	}
	return trimTrailingNewline(s), nil
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
