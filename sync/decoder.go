package sync

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// RecordDecoder lazily turns an audience export csv into Records.
// The first row is the header, a column is looked up by its external name.
type RecordDecoder struct {
	reader *csv.Reader
	fields FieldSet
	index  map[string]int
	rows   int
	eof    bool
}

// NewRecordDecoder reads the header row of r. Empty content decodes to no records.
func NewRecordDecoder(r io.Reader, fields FieldSet) (*RecordDecoder, error) {
	reader := csv.NewReader(NewTextReader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	result := &RecordDecoder{reader: reader, fields: fields}
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		result.eof = true
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audience csv header %w", ErrUpstreamProtocol, err)
	}
	result.index = HeaderIndex(header, fields)
	return result, nil
}

// HeaderIndex maps the external names of the declared fields to their column position.
// Declared fields missing from the header are left out. A repeated column name resolves to its last position.
func HeaderIndex(header []string, fields FieldSet) map[string]int {
	declared := make(map[string]bool, len(fields.Ordered))
	for _, f := range fields.Ordered {
		declared[f.External] = true
	}
	result := make(map[string]int, len(declared))
	for i, name := range header {
		if declared[name] {
			result[name] = i
		}
	}
	return result
}

// Columns reports which declared external names were found in the header.
func (d *RecordDecoder) Columns() map[string]int {
	return d.index
}

// Next returns the next Record, or io.EOF once the content is exhausted.
func (d *RecordDecoder) Next() (Record, error) {
	if d.eof {
		return nil, io.EOF
	}
	cells, err := d.reader.Read()
	if errors.Is(err, io.EOF) {
		d.eof = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audience csv row %d %w", ErrUpstreamProtocol, d.rows+1, err)
	}
	d.rows++
	result := make(Record, len(d.fields.Ordered))
	MapFields(d.fields, Row{cells: cells, index: d.index}, result)
	return result, nil
}

// Rows is the number of data rows decoded so far.
func (d *RecordDecoder) Rows() int {
	return d.rows
}
