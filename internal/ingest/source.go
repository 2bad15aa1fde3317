package ingest

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// Source exposes one uploaded payload as a single sequential byte stream,
// transparently decompressed when the file was uploaded gzipped. A gzipped
// payload is always decompressed as one continuous stream; compressed frames
// are not independently addressable, so the stream is never split by byte
// range (concurrency comes from processing multiple files, not from sharding
// one stream).
type Source struct {
	file *os.File
	gz   *gzip.Reader
	r    io.Reader
}

// OpenSource opens the spooled payload at path. When gzipped is set the
// returned stream yields the decompressed bytes; a corrupt gzip header
// surfaces here, mid-stream corruption surfaces as a read error.
func OpenSource(path string, gzipped bool) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	s := &Source{file: f, r: f}
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		s.gz = gz
		s.r = gz
	}

	return s, nil
}

// Read implements io.Reader over the (decompressed) payload.
func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close closes the decompressor and the underlying file.
func (s *Source) Close() error {
	var errs []error
	if s.gz != nil {
		if err := s.gz.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing source: %v", errs)
	}
	return nil
}
