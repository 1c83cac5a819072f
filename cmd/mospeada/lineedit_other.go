//go:build !linux

package main

func readInteractiveLine(prompt string) (string, error) {
	line, err := readPlainLine(prompt)
	if err == nil {
		remember(line)
	}
	return line, err
}
