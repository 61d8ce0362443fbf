// internal/meallog/reader.go
package meallog

import (
	"bufio"
	"fmt"
	"io"
)

// MaxLineLength bounds a single record line. Real records are a few dozen
// bytes; anything longer is line noise.
const MaxLineLength = 4096

// ErrLineTooLong marks a line over MaxLineLength. It is an unrecognized
// record, so a stream carrying one is still decoded.
var ErrLineTooLong = fmt.Errorf("%w: line longer than %d bytes", ErrUnrecognized, MaxLineLength)

// LineReader splits a stream into lines without holding an oversized line
// in memory. Unlike bufio.Scanner it does not stop at a long line.
type LineReader struct {
	br *bufio.Reader
}

func NewLineReader(r io.Reader) *LineReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &LineReader{br: br}
	}
	return &LineReader{br: bufio.NewReader(r)}
}

// Next returns the next line without its terminator. A line over
// MaxLineLength is consumed to its end and returned truncated together with
// ErrLineTooLong; reading can continue. io.EOF means no more lines.
func (lr *LineReader) Next() (string, error) {
	buf, more, err := lr.br.ReadLine()
	if err != nil {
		return "", err
	}
	line := string(buf)
	long := false
	if len(line) > MaxLineLength {
		line, long = line[:MaxLineLength], true
	}
	for more {
		buf, more, err = lr.br.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if long {
			continue
		}
		if room := MaxLineLength - len(line); len(buf) > room {
			line, long = line+string(buf[:room]), true
		} else {
			line += string(buf)
		}
	}
	if long {
		return line, ErrLineTooLong
	}
	return line, nil
}
