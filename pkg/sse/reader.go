package sse

import (
	"bufio"
	"io"
	"strings"
)

// maxLine bounds a single SSE line. Answers are split into small chunks,
// so a longer line means a broken stream.
const maxLine = 1024 * 1024

// Reader parses SSE events from a byte stream. A Reader created with
// NewTeeReader also copies every line it consumes, verbatim, to a second
// writer; the chat command points it at a transcript file.
type Reader struct {
	lines *bufio.Scanner
	tee   io.Writer

	ev     Event
	fields int
	data   int
}

// NewReader parses events from src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, io.Discard)
}

// NewTeeReader parses events from src and copies the raw lines to dest.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	lines := bufio.NewScanner(src)
	lines.Buffer(make([]byte, 0, 64*1024), maxLine)

	return &Reader{lines: lines, tee: dest}
}

// Next blocks until a complete event is read. An event still open when
// src ends is returned as well. Next returns nil, nil once src is
// exhausted, and the error of a failed read or tee write otherwise.
func (r *Reader) Next() (*Event, error) {
	for r.lines.Scan() {
		line := r.lines.Text()
		if _, err := io.WriteString(r.tee, line+"\n"); err != nil {
			return nil, err
		}

		line = strings.TrimSuffix(line, "\r")
		switch {
		case line == "":
			// Keep-alive comments leave a blank line with no fields behind.
			if ev := r.take(); ev != nil {
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
		default:
			r.field(line)
		}
	}
	if err := r.lines.Err(); err != nil {
		return nil, err
	}

	return r.take(), nil
}

// field applies one "name: value" line to the pending event. A single
// space after the colon is not part of the value.
func (r *Reader) field(line string) {
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch name {
	case "data":
		if r.data > 0 {
			r.ev.Data += "\n"
		}
		r.ev.Data += value
		r.data++
	case "event":
		r.ev.Type = value
	case "id":
		r.ev.ID = value
	default:
		// retry and unknown fields
		return
	}
	r.fields++
}

func (r *Reader) take() *Event {
	if r.fields == 0 {
		return nil
	}
	ev := r.ev
	r.ev = Event{}
	r.fields, r.data = 0, 0
	return &ev
}
