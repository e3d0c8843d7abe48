package scopelog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
)

// SinkSnapshot is everything that could be read from a sink at one moment.
type SinkSnapshot struct {
	Header  []string
	Rows    [][]float64 // Rows[i][j] is sample instant i on channel j
	Dropped int         // malformed trailing rows left out of Rows
}

// TotalRows returns the number of complete data rows.
func (snap *SinkSnapshot) TotalRows() int {
	return len(snap.Rows)
}

// ReadSink re-reads the whole sink at path. The file is opened, read, and
// closed before returning; nothing is held open between calls.
//
// A writer may be part-way through an append, so the last row can be cut
// short. A final line with no terminating newline, or a final line with the
// wrong number of fields or an unparsable value, is counted in Dropped and
// otherwise ignored. A missing file is ErrSinkUnavailable. An empty file, or
// one whose header is still incomplete, gives an empty snapshot.
func ReadSink(path string) (*SinkSnapshot, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrSinkUnavailable, path, err)
	}
	return ParseSink(contents)
}

// ParseSink parses sink contents as described for ReadSink.
func ParseSink(contents []byte) (*SinkSnapshot, error) {
	snap := new(SinkSnapshot)
	if end := bytes.LastIndexByte(contents, '\n'); end < len(contents)-1 {
		// Unterminated trailing line: an append in progress. If it is the
		// header itself, there is nothing to read yet.
		if end >= 0 {
			snap.Dropped++
		}
		contents = contents[:end+1]
	}
	if len(contents) == 0 {
		return snap, nil
	}

	r := csv.NewReader(bytes.NewReader(contents))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	header, err := r.Read()
	if err == io.EOF {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sink header: %w", ErrPartialRow, err)
	}
	snap.Header = append([]string(nil), header...)
	nchan := len(snap.Header)

	var pending error // a bad row is only forgiven if nothing follows it
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if pending != nil {
			return nil, pending
		}
		if err != nil {
			pending = fmt.Errorf("%w: line %d: %w", ErrPartialRow, line, err)
			continue
		}
		row, err := parseRow(record, nchan)
		if err != nil {
			pending = fmt.Errorf("%w: line %d: %w", ErrPartialRow, line, err)
			continue
		}
		snap.Rows = append(snap.Rows, row)
	}
	if pending != nil {
		snap.Dropped++
	}
	return snap, nil
}

func parseRow(record []string, nchan int) ([]float64, error) {
	if len(record) != nchan {
		return nil, fmt.Errorf("%d fields, want %d", len(record), nchan)
	}
	row := make([]float64, nchan)
	for j, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		row[j] = v
	}
	return row, nil
}
