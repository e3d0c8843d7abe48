// Package npyappend writes a 2-D float64 array in numpy's *.npy format,
// growing it one block of rows at a time.
package npyappend

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// npy file header (preamble included) must be a multiple of 64 bytes
const headerUnits = 64

// magic string, version 1.0, then 2 bytes of header length
const preambleSize = 10

// Room reserved in the header for the row count, so the header never changes size.
const maxRowDigits = 20

// Appender appends rows of a fixed width to a .npy file. The header is
// rewritten in place after every append, so the file is a valid array of
// shape (Rows(), Cols()) whenever no Append is in progress.
type Appender struct {
	file       *os.File
	ncols      int
	rows       int
	headerSize int
	buf        []byte
}

// Create makes (or truncates) filename and writes an empty (0, ncols) array.
func Create(filename string, ncols int) (*Appender, error) {
	if ncols <= 0 {
		return nil, fmt.Errorf("npyappend: ncols=%d, want > 0", ncols)
	}
	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	a := &Appender{file: f, ncols: ncols}
	longest := a.dict(strings.Repeat("9", maxRowDigits))
	a.headerSize = (preambleSize + len(longest) + 1 + headerUnits - 1) / headerUnits * headerUnits
	if err := a.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func (a *Appender) dict(rows string) string {
	return fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%s, %d), }", rows, a.ncols)
}

func (a *Appender) writeHeader() error {
	dict := a.dict(strconv.Itoa(a.rows))
	h := make([]byte, 0, a.headerSize)
	h = append(h, 0x93, 'N', 'U', 'M', 'P', 'Y', 1, 0)
	h = binary.LittleEndian.AppendUint16(h, uint16(a.headerSize-preambleSize))
	h = append(h, dict...)
	for len(h) < a.headerSize-1 {
		h = append(h, ' ')
	}
	h = append(h, '\n')
	_, err := a.file.WriteAt(h, 0)
	return err
}

// Append writes rowMajor, whose length must be a multiple of Cols(), as
// len(rowMajor)/Cols() new rows, then updates the header.
func (a *Appender) Append(rowMajor []float64) error {
	if len(rowMajor)%a.ncols != 0 {
		return fmt.Errorf("npyappend: %d values is not a whole number of %d-column rows", len(rowMajor), a.ncols)
	}
	a.buf = a.buf[:0]
	for _, v := range rowMajor {
		a.buf = binary.LittleEndian.AppendUint64(a.buf, math.Float64bits(v))
	}
	offset := int64(a.headerSize) + int64(a.rows)*int64(a.ncols)*8
	if _, err := a.file.WriteAt(a.buf, offset); err != nil {
		return err
	}
	a.rows += len(rowMajor) / a.ncols
	return a.writeHeader()
}

// Rows returns the number of rows written so far.
func (a *Appender) Rows() int {
	return a.rows
}

// Cols returns the row width.
func (a *Appender) Cols() int {
	return a.ncols
}

// Sync commits the file to stable storage.
func (a *Appender) Sync() error {
	return a.file.Sync()
}

// Close writes the final header and closes the file.
func (a *Appender) Close() error {
	if err := a.writeHeader(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}
