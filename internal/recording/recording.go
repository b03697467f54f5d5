// Package recording reads and writes recorded moves: timestamped tables of
// named landmark values stored as tab-separated text files.
package recording

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ayusman/instructor/internal/geom"
)

var (
	// ErrNotFound is returned when a move file does not exist.
	ErrNotFound = errors.New("move not found")

	// ErrMalformed is returned when a move file cannot be parsed.
	ErrMalformed = errors.New("malformed recording")

	// ErrInvalidID is returned for move ids that cannot name a file.
	ErrInvalidID = errors.New("invalid move id")
)

// TimestampColumn is the header of the sample time column.
const TimestampColumn = "timestamp"

// columnSep separates the producer entity from the field in a column name.
const columnSep = "::"

// Kind selects the namespace a recording lives in.
type Kind int

const (
	// KindRecorded is a move captured by the external recorder.
	KindRecorded Kind = iota
	// KindBridge is a generated transition between two moves.
	KindBridge
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindRecorded:
		return "recorded"
	case KindBridge:
		return "bridge"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// BridgeID names the bridge recording from move a to move b.
//
// The name is not reversible: ids containing "_to_" can collide, for example
// ("x_to", "y") and ("x", "to_y") share one bridge file. Bridges are
// regenerated before every play, so a collision only overwrites a file that
// is rebuilt on its next use.
func BridgeID(a, b string) string {
	return a + "_to_" + b
}

// Column identifies one named value, written as "<entity>::<field>".
type Column struct {
	Entity string
	Field  string
}

// String returns the header form of the column.
func (c Column) String() string {
	return c.Entity + columnSep + c.Field
}

// ParseColumn splits a header cell into entity and field.
func ParseColumn(s string) (Column, error) {
	entity, field, ok := strings.Cut(strings.TrimSpace(s), columnSep)
	if !ok || field == "" {
		return Column{}, fmt.Errorf("%w: column %q is not <entity>::<field>", ErrMalformed, s)
	}
	return Column{Entity: entity, Field: field}, nil
}

// Sample is one row: a timestamp in unix seconds plus one value per column.
// A value of length 1 is a scalar, length 3 a vector.
type Sample struct {
	Timestamp float64
	Values    [][]float64
}

// Recording is an ordered series of samples for one move.
type Recording struct {
	ID      string
	Kind    Kind
	Columns []Column
	Samples []Sample
}

// New creates an empty recording.
func New(id string, kind Kind, columns []Column) *Recording {
	return &Recording{ID: id, Kind: kind, Columns: columns}
}

// Len returns the number of samples.
func (r *Recording) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Samples)
}

// Empty reports whether the recording has no samples.
func (r *Recording) Empty() bool {
	return r.Len() == 0
}

// Duration returns the time between the first and last sample in seconds.
func (r *Recording) Duration() float64 {
	if r.Len() < 2 {
		return 0
	}
	return r.Samples[len(r.Samples)-1].Timestamp - r.Samples[0].Timestamp
}

// Find returns the index of the first column with the given field.
// An empty entity matches any producer.
func (r *Recording) Find(entity, field string) (int, bool) {
	for i, c := range r.Columns {
		if c.Field == field && (entity == "" || c.Entity == entity) {
			return i, true
		}
	}
	return -1, false
}

// Arity returns the value width of a column, or 0 if there are no samples.
func (r *Recording) Arity(col int) int {
	if r.Empty() {
		return 0
	}
	return len(r.Samples[0].Values[col])
}

// Vectors returns the 3D series stored in column col.
func (r *Recording) Vectors(col int) ([]geom.Vec3, error) {
	if col < 0 || col >= len(r.Columns) {
		return nil, fmt.Errorf("column %d out of range", col)
	}
	out := make([]geom.Vec3, len(r.Samples))
	for i, s := range r.Samples {
		v, ok := geom.FromSlice(s.Values[col])
		if !ok {
			return nil, fmt.Errorf("%w: %s row %d: column %s is not a 3D vector",
				ErrMalformed, r.ID, i+1, r.Columns[col])
		}
		out[i] = v
	}
	return out, nil
}

// FieldVectors looks up a field and returns its 3D series.
func (r *Recording) FieldVectors(entity, field string) ([]geom.Vec3, bool, error) {
	col, ok := r.Find(entity, field)
	if !ok {
		return nil, false, nil
	}
	vecs, err := r.Vectors(col)
	return vecs, true, err
}

// AppendFrame adds one sample built from named points of a single producer.
// The first frame fixes the columns (sorted by name); later frames must
// provide every one of them.
func (r *Recording) AppendFrame(timestamp float64, entity string, points map[string]geom.Vec3) error {
	if len(r.Columns) == 0 {
		names := make([]string, 0, len(points))
		for name := range points {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.Columns = append(r.Columns, Column{Entity: entity, Field: name})
		}
	}

	values := make([][]float64, len(r.Columns))
	for i, c := range r.Columns {
		p, ok := points[c.Field]
		if !ok || c.Entity != entity {
			return fmt.Errorf("frame has no value for column %s", c)
		}
		values[i] = p.Slice()
	}
	r.Samples = append(r.Samples, Sample{Timestamp: timestamp, Values: values})
	return nil
}
