package tracing

import (
	"encoding/json"
	"fmt"
	"io"
)

// Reader reads Lines back out of a JSONL trace file, for replay or
// analysis. Grounded on internal/agent/trace.go's TraceReader.
type Reader struct {
	decoder *json.Decoder
	header  *Header
}

// NewReader validates and consumes the Header, then is ready for
// repeated ReadLine calls.
func NewReader(r io.Reader) (*Reader, error) {
	decoder := json.NewDecoder(r)

	var header Header
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("read trace header: %w", err)
	}
	if header.Version != headerVersion {
		return nil, fmt.Errorf("unsupported trace version: %d", header.Version)
	}

	return &Reader{decoder: decoder, header: &header}, nil
}

// Header returns the trace's run metadata.
func (r *Reader) Header() *Header {
	return r.header
}

// ReadLine reads the next Line. Returns io.EOF once exhausted.
func (r *Reader) ReadLine() (*Line, error) {
	var line Line
	if err := r.decoder.Decode(&line); err != nil {
		return nil, err
	}
	return &line, nil
}

// ReadAll drains every remaining Line.
func (r *Reader) ReadAll() ([]Line, error) {
	var lines []Line
	for {
		line, err := r.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, *line)
	}
	return lines, nil
}
