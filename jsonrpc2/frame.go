package jsonrpc2

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const headerContentLength = "Content-Length"

// FrameReader splits a byte stream into Content-Length delimited frames.
// Headers other than Content-Length are ignored, and header names match
// case-insensitively.
//
// A frame that exceeds the size limit has its body skipped, so the next
// ReadFrame resumes at the following frame, unless FailFast is set.
type FrameReader struct {
	// FailFast returns ErrFrameTooLarge as soon as an oversized header is
	// read, leaving the body unread. The stream is unusable afterwards.
	FailFast bool

	r   *bufio.Reader
	max int
}

// NewFrameReader returns a FrameReader that rejects bodies over maxFrame
// bytes. Zero disables the limit.
func NewFrameReader(r io.Reader, maxFrame int) *FrameReader {
	return &FrameReader{
		r:   bufio.NewReader(r),
		max: maxFrame,
	}
}

// ReadFrame returns the next frame body. It returns io.EOF if the stream ends
// cleanly between frames and ErrTruncatedFrame if it ends inside one.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	length := -1
	started := false
	for {
		line, err := fr.r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			return nil, fmt.Errorf("%w: header line too long", ErrBadHeader)
		}
		if err != nil {
			if started || len(line) > 0 {
				return nil, truncated(err)
			}
			return nil, err
		}
		started = true

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			break
		}
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadHeader, line)
		}
		if !bytes.EqualFold(bytes.TrimSpace(name), []byte(headerContentLength)) {
			continue
		}
		n, err := strconv.Atoi(string(bytes.TrimSpace(value)))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid %s %q", ErrBadHeader, headerContentLength, value)
		}
		length = n
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrBadHeader, headerContentLength)
	}

	if fr.max > 0 && length > fr.max {
		if fr.FailFast {
			return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, length, fr.max)
		}
		if _, err := io.CopyN(io.Discard, fr.r, int64(length)); err != nil {
			return nil, truncated(err)
		}
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, length, fr.max)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(fr.r, frame); err != nil {
		return nil, truncated(err)
	}
	return frame, nil
}

func truncated(err error) error {
	switch {
	case errors.Is(err, ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, ErrTruncatedFrame)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncatedFrame
	}
	return err
}

// WriteFrame writes p to w as a single frame with a Content-Length header, in
// one Write call.
func WriteFrame(w io.Writer, p []byte) error {
	buf := make([]byte, 0, len(p)+len(headerContentLength)+16)
	buf = append(buf, headerContentLength...)
	buf = append(buf, ": "...)
	buf = strconv.AppendInt(buf, int64(len(p)), 10)
	buf = append(buf, "\r\n\r\n"...)
	buf = append(buf, p...)
	_, err := w.Write(buf)
	return err
}
