package scopelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/usnistgov/scopelog/internal/npyappend"
)

// CSVSink is the append-only record stream of one run: a header naming the
// channels, then one row per sample instant. Only the acquisition loop writes
// to it. Every append is flushed and synced before it returns, so a reader
// that opens the file afterwards sees whole batches.
type CSVSink struct {
	path        string
	file        *os.File
	writer      *csv.Writer
	mirror      *npyappend.Appender
	nchan       int
	rowsWritten int
	record      []string
}

// CreateCSVSink creates (or truncates) the file at path and writes the header.
// Failure to create or write the file is ErrSinkUnavailable.
func CreateCSVSink(path string, channels ChannelSet) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	sink := &CSVSink{
		path:   path,
		file:   f,
		writer: csv.NewWriter(f),
		nchan:  channels.Len(),
		record: make([]string, channels.Len()),
	}
	if err := sink.writer.Write(channels.Names()); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: writing header to %s: %w", ErrSinkUnavailable, path, err)
	}
	if err := sink.commit(); err != nil {
		f.Close()
		return nil, err
	}
	return sink, nil
}

// EnableMirror also appends every batch to a float64 .npy array at path.
func (s *CSVSink) EnableMirror(path string) error {
	if s.mirror != nil {
		return fmt.Errorf("sink %s already has an npy mirror", s.path)
	}
	a, err := npyappend.Create(path, s.nchan)
	if err != nil {
		return fmt.Errorf("%w: npy mirror: %w", ErrSinkUnavailable, err)
	}
	s.mirror = a
	return nil
}

// AppendBatch appends one row per sample instant of b, in order.
func (s *CSVSink) AppendBatch(b *SampleBatch) error {
	if b.Cols() != s.nchan {
		return fmt.Errorf("batch has %d channels, sink %s has %d", b.Cols(), s.path, s.nchan)
	}
	for i := 0; i < b.Rows(); i++ {
		for j := range s.record {
			s.record[j] = strconv.FormatFloat(b.At(i, j), 'g', -1, 64)
		}
		if err := s.writer.Write(s.record); err != nil {
			return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
	}
	if err := s.commit(); err != nil {
		return err
	}
	s.rowsWritten += b.Rows()
	if s.mirror != nil {
		if err := s.mirror.Append(b.RawRowMajor()); err != nil {
			return fmt.Errorf("npy mirror: %w", err)
		}
	}
	return nil
}

func (s *CSVSink) commit() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("%w: flushing %s: %w", ErrSinkUnavailable, s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %w", ErrSinkUnavailable, s.path, err)
	}
	return nil
}

// RowsWritten returns the number of data rows appended so far.
func (s *CSVSink) RowsWritten() int {
	return s.rowsWritten
}

// Path returns the sink's file name.
func (s *CSVSink) Path() string {
	return s.path
}

// Close flushes and closes the sink (and its mirror, if any).
func (s *CSVSink) Close() error {
	var firstErr error
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		firstErr = err
	}
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
