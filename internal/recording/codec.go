package recording

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/instructor/internal/geom"
)

// vectorArity is the only vector width the format carries.
const vectorArity = 3

// Timestamp layouts accepted besides plain unix seconds.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

// Read parses a tab-separated move table.
func Read(r io.Reader, id string, kind Kind) (*Recording, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return New(id, kind, nil), nil
	}
	if err != nil {
		return nil, malformed(id, 1, err)
	}

	tsCol := -1
	columns := make([]Column, 0, len(header))
	fieldIndex := make([]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == TimestampColumn {
			if tsCol >= 0 {
				return nil, malformed(id, 1, errors.New("duplicate timestamp column"))
			}
			tsCol = i
			fieldIndex[i] = -1
			continue
		}
		c, err := ParseColumn(h)
		if err != nil {
			return nil, malformed(id, 1, err)
		}
		fieldIndex[i] = len(columns)
		columns = append(columns, c)
	}
	if tsCol < 0 {
		return nil, malformed(id, 1, errors.New("missing timestamp column"))
	}

	rec := New(id, kind, columns)
	arity := make([]int, len(columns))

	for row := 2; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(id, row, err)
		}

		sample := Sample{Values: make([][]float64, len(columns))}
		for i, raw := range fields {
			if i == tsCol {
				ts, err := parseTimestamp(raw)
				if err != nil {
					return nil, malformed(id, row, err)
				}
				sample.Timestamp = ts
				continue
			}

			col := fieldIndex[i]
			v, err := parseValue(raw)
			if err != nil {
				return nil, malformed(id, row, fmt.Errorf("column %s: %w", columns[col], err))
			}
			if arity[col] == 0 {
				arity[col] = len(v)
			} else if arity[col] != len(v) {
				return nil, malformed(id, row, fmt.Errorf("column %s: width %d, earlier rows %d", columns[col], len(v), arity[col]))
			}
			sample.Values[col] = v
		}
		rec.Samples = append(rec.Samples, sample)
	}

	return rec, nil
}

// Write renders a recording as a tab-separated table.
func Write(w io.Writer, rec *Recording) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := make([]string, 0, len(rec.Columns)+1)
	header = append(header, TimestampColumn)
	for _, c := range rec.Columns {
		header = append(header, c.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i, s := range rec.Samples {
		if len(s.Values) != len(rec.Columns) {
			return fmt.Errorf("sample %d has %d values for %d columns", i, len(s.Values), len(rec.Columns))
		}
		row[0] = strconv.FormatFloat(s.Timestamp, 'f', 6, 64)
		for j, v := range s.Values {
			row[j+1] = formatValue(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func parseValue(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		return geom.ParseVector(raw, vectorArity)
	}
	v, err := geom.ParseNumber(raw)
	if err != nil {
		return nil, err
	}
	return []float64{v}, nil
}

func formatValue(v []float64) string {
	if len(v) == 1 {
		return strconv.FormatFloat(v[0], 'g', -1, 64)
	}
	return geom.FormatVector(v)
}

// parseTimestamp accepts unix seconds or a wall-clock timestamp and returns
// unix seconds.
func parseTimestamp(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if v, err := geom.ParseNumber(raw); err == nil {
		return v, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return float64(t.UnixNano()) / float64(time.Second), nil
		}
	}
	return 0, fmt.Errorf("unrecognised timestamp %q", raw)
}

func malformed(id string, row int, err error) error {
	return fmt.Errorf("%w: %s row %d: %v", ErrMalformed, id, row, err)
}
