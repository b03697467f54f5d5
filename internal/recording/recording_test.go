package recording

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/instructor/internal/geom"
	"github.com/ayusman/instructor/testdata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	layout := Layout{
		MovesDir:       filepath.Join(dir, "moves"),
		RecordedSuffix: testdata.RecordedSuffix,
		BridgesDir:     filepath.Join(dir, "bridges"),
	}
	if err := testdata.WriteMoves(layout.MovesDir); err != nil {
		t.Fatalf("WriteMoves() error = %v", err)
	}
	return NewStore(layout)
}

func TestRead_Fixture(t *testing.T) {
	data, err := testdata.LoadMove(testdata.Wave)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := Read(bytes.NewReader(data), testdata.Wave, KindRecorded)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if rec.Len() != 5 {
		t.Fatalf("got %d samples, want 5", rec.Len())
	}
	if len(rec.Columns) != 3 {
		t.Fatalf("got %d columns, want 3", len(rec.Columns))
	}
	if rec.Columns[0] != (Column{Entity: "mediapipe", Field: "right_hand"}) {
		t.Errorf("first column = %v", rec.Columns[0])
	}

	hands, ok, err := rec.FieldVectors("", "right_hand")
	if err != nil || !ok {
		t.Fatalf("FieldVectors() = %v, %v", ok, err)
	}
	if hands[2] != geom.V(0.26, 0.27, -0.44) {
		t.Errorf("hand[2] = %v", hands[2])
	}
	if math.Abs(rec.Duration()-0.132) > 1e-6 {
		t.Errorf("Duration() = %f, want 0.132", rec.Duration())
	}
}

func TestRead_WallClockTimestamps(t *testing.T) {
	data, err := testdata.LoadMove(testdata.Point)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := Read(bytes.NewReader(data), testdata.Point, KindRecorded)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if math.Abs(rec.Duration()-0.066) > 1e-6 {
		t.Errorf("Duration() = %f, want 0.066", rec.Duration())
	}
}

func TestRead_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing timestamp", "a::b\n[1, 2, 3]\n"},
		{"bad column name", "timestamp\tright_hand\n0\t[1, 2, 3]\n"},
		{"short vector", "timestamp\ta::b\n0\t[1, 2]\n"},
		{"mixed widths", "timestamp\ta::b\n0\t[1, 2, 3]\n1\t4\n"},
		{"bad number", "timestamp\ta::b\n0\tabc\n"},
		{"bad timestamp", "timestamp\ta::b\nyesterday\t1\n"},
		{"wrong field count", "timestamp\ta::b\n0\t1\t2\n"},
		{"duplicate timestamp", "timestamp\ttimestamp\n0\t0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), "m", KindRecorded)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Read() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestRead_EmptyInputs(t *testing.T) {
	rec, err := Read(strings.NewReader(""), "m", KindRecorded)
	if err != nil || !rec.Empty() {
		t.Errorf("Read(empty) = %v, %v; want empty recording", rec, err)
	}

	rec, err = Read(strings.NewReader("timestamp\ta::b\n"), "m", KindRecorded)
	if err != nil || !rec.Empty() || len(rec.Columns) != 1 {
		t.Errorf("Read(header only) = %+v, %v", rec, err)
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	rec := New("m", KindBridge, []Column{{"p", "right_hand"}, {"p", "score"}})
	rec.Samples = []Sample{
		{Timestamp: 10.5, Values: [][]float64{{0.1, 0.2, 0.3}, {0.9}}},
		{Timestamp: 10.75, Values: [][]float64{{-1, 2e-7, 3}, {1}}},
	}

	var buf bytes.Buffer
	if err := Write(&buf, rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	back, err := Read(&buf, "m", KindBridge)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if back.Len() != 2 || len(back.Columns) != 2 {
		t.Fatalf("round trip shape = %d samples, %d columns", back.Len(), len(back.Columns))
	}
	for i := range rec.Samples {
		if math.Abs(back.Samples[i].Timestamp-rec.Samples[i].Timestamp) > 1e-6 {
			t.Errorf("timestamp %d = %f", i, back.Samples[i].Timestamp)
		}
		for j := range rec.Samples[i].Values {
			for k, v := range rec.Samples[i].Values[j] {
				if back.Samples[i].Values[j][k] != v {
					t.Errorf("value [%d][%d][%d] = %v, want %v", i, j, k, back.Samples[i].Values[j][k], v)
				}
			}
		}
	}
}

func TestAppendFrame(t *testing.T) {
	rec := New("m", KindRecorded, nil)
	frame := map[string]geom.Vec3{
		"right_hand":  geom.V(1, 2, 3),
		"center_hips": geom.V(0, 0, 0),
	}

	if err := rec.AppendFrame(1, "mediapipe", frame); err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	if err := rec.AppendFrame(2, "mediapipe", frame); err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	if rec.Columns[0].Field != "center_hips" {
		t.Errorf("columns not sorted: %v", rec.Columns)
	}

	delete(frame, "center_hips")
	if err := rec.AppendFrame(3, "mediapipe", frame); err == nil {
		t.Error("expected error for frame missing a column")
	}
	if rec.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rec.Len())
	}
}

func TestStore_Load(t *testing.T) {
	s := newTestStore(t)

	t.Run("existing move", func(t *testing.T) {
		rec, err := s.Load(testdata.Reach, KindRecorded)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if rec.ID != testdata.Reach || rec.Kind != KindRecorded || rec.Len() != 5 {
			t.Errorf("unexpected recording %s/%v with %d samples", rec.ID, rec.Kind, rec.Len())
		}
	})

	t.Run("missing move", func(t *testing.T) {
		_, err := s.Load("nope", KindRecorded)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("namespaces are distinct", func(t *testing.T) {
		_, err := s.Load(testdata.Wave, KindBridge)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(bridge) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("malformed move", func(t *testing.T) {
		_, err := s.Load(testdata.Broken, KindRecorded)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Load() error = %v, want ErrMalformed", err)
		}
	})

	t.Run("path traversal", func(t *testing.T) {
		for _, id := range []string{"", "..", "../etc/passwd", "a/b", "a\\b"} {
			_, err := s.Load(id, KindRecorded)
			if !errors.Is(err, ErrInvalidID) {
				t.Errorf("Load(%q) error = %v, want ErrInvalidID", id, err)
			}
		}
	})

	t.Run("unreadable path is not reported as missing", func(t *testing.T) {
		path, _ := s.Layout().Path("dir", KindRecorded)
		if err := os.MkdirAll(path, 0755); err != nil {
			t.Fatal(err)
		}
		_, err := s.Load("dir", KindRecorded)
		if err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("Load(directory) error = %v, want a read error", err)
		}
	})
}

func TestStore_SaveRemoveList(t *testing.T) {
	s := newTestStore(t)

	id := BridgeID(testdata.Wave, testdata.Reach)
	if id != "wave_to_reach" {
		t.Fatalf("BridgeID() = %q", id)
	}

	rec := New(id, KindBridge, []Column{{"mediapipe", "right_hand"}})
	rec.Samples = []Sample{{Timestamp: 1, Values: [][]float64{{1, 2, 3}}}}

	if err := s.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec.Samples[0].Values[0] = []float64{4, 5, 6}
	if err := s.Save(rec); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := s.Load(id, KindBridge)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := loaded.Samples[0].Values[0]; got[0] != 4 || got[2] != 6 {
		t.Errorf("bridge not overwritten: %v", got)
	}

	bridges, err := s.List(KindBridge)
	if err != nil || len(bridges) != 1 || bridges[0] != id {
		t.Errorf("List(bridge) = %v, %v", bridges, err)
	}

	moves, err := s.List(KindRecorded)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{testdata.Broken, testdata.Point, testdata.Reach, testdata.Wave}
	if strings.Join(moves, ",") != strings.Join(want, ",") {
		t.Errorf("List(recorded) = %v, want %v", moves, want)
	}

	if err := s.Remove(id, KindBridge); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove(id, KindBridge); err != nil {
		t.Errorf("Remove() of missing bridge error = %v", err)
	}
	if _, err := s.Load(id, KindBridge); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestKindString(t *testing.T) {
	if KindRecorded.String() != "recorded" || KindBridge.String() != "bridge" {
		t.Error("unexpected kind names")
	}
}

func TestVectors_RejectsScalars(t *testing.T) {
	rec := New("m", KindRecorded, []Column{{"p", "score"}})
	rec.Samples = []Sample{{Values: [][]float64{{0.5}}}}
	if _, err := rec.Vectors(0); !errors.Is(err, ErrMalformed) {
		t.Errorf("Vectors() error = %v, want ErrMalformed", err)
	}
	if _, err := rec.Vectors(3); err == nil {
		t.Error("expected out of range error")
	}
}

func TestBridgeID(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"wave", "reach", "wave_to_reach"},
		{"x_to", "y", "x_to_to_y"},
		{"x", "to_y", "x_to_to_y"},
	}
	for _, tt := range tests {
		if got := BridgeID(tt.a, tt.b); got != tt.want {
			t.Errorf("BridgeID(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
