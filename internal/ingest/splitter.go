package ingest

import (
	"bytes"
	"context"
	"io"
	"strings"
)

// Line is one complete newline-delimited record from a byte stream, tagged
// with its 1-based number local to the file.
type Line struct {
	Text   string
	Number int
}

// Splitter consumes a byte stream in bounded-size reads and yields complete
// lines in arrival order. A trailing partial line is buffered across read
// boundaries and prepended to the next chunk, so a line is never truncated
// or duplicated at a chunk boundary. At end-of-stream a non-empty remainder
// is emitted as a final line.
//
// Whitespace-only lines are discarded without a record and without consuming
// a line number: the counter increments only for lines forwarded to the
// normalizer.
type Splitter struct {
	r       io.Reader
	buf     []byte
	carry   []byte
	pending []string
	next    int
	lineNo  int
	eof     bool
}

// NewSplitter creates a splitter reading chunks of at most chunkSize bytes.
func NewSplitter(r io.Reader, chunkSize int) *Splitter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Splitter{
		r:   r,
		buf: make([]byte, chunkSize),
	}
}

// Next returns the next non-blank line. It returns io.EOF when the stream is
// exhausted and checks ctx between reads so a canceled batch stops between
// chunks, not mid-line.
func (s *Splitter) Next(ctx context.Context) (Line, error) {
	for {
		select {
		case <-ctx.Done():
			return Line{}, ctx.Err()
		default:
		}

		for s.next < len(s.pending) {
			text := s.pending[s.next]
			s.next++
			if strings.TrimSpace(text) == "" {
				continue
			}
			s.lineNo++
			return Line{Text: text, Number: s.lineNo}, nil
		}

		if s.eof {
			return Line{}, io.EOF
		}
		if err := s.fill(); err != nil {
			return Line{}, err
		}
	}
}

// LinesForwarded returns how many lines have been handed out so far.
func (s *Splitter) LinesForwarded() int {
	return s.lineNo
}

// fill reads one chunk and re-splits carry+chunk into complete lines.
func (s *Splitter) fill() error {
	s.pending = s.pending[:0]
	s.next = 0

	n, err := s.r.Read(s.buf)
	if n > 0 {
		data := append(s.carry, s.buf[:n]...)
		last := bytes.LastIndexByte(data, '\n')
		if last == -1 {
			s.carry = data
		} else {
			for _, raw := range bytes.Split(data[:last], []byte{'\n'}) {
				s.pending = append(s.pending, string(raw))
			}
			s.carry = append([]byte(nil), data[last+1:]...)
		}
	}

	if err == io.EOF {
		s.eof = true
		if len(s.carry) > 0 {
			s.pending = append(s.pending, string(s.carry))
			s.carry = nil
		}
		return nil
	}
	return err
}
