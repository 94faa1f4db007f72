package model

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLineString(t *testing.T) {
	l := Line{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8}
	if got := l.String(); got != "0 1 2 3 4.000000 5 6 7 8" {
		t.Errorf("unexpected wire form: %q", got)
	}

	l = Line{X1: -10, Y1: 20, X2: 30, Y2: -40, Width: 2.5, R: 255, G: 0, B: 128, A: 255}
	if got := l.String(); got != "-10 20 30 -40 2.500000 255 0 128 255" {
		t.Errorf("unexpected wire form: %q", got)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Line
		wantErr bool
	}{
		{
			name:  "integer width",
			input: "0 1 2 3 4 5 6 7 8",
			want:  Line{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8},
		},
		{
			name:  "float width",
			input: "0 1 2 3 4.0 5 6 7 8",
			want:  Line{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8},
		},
		{name: "too few fields", input: "0 1 2 3 4.0 5 6 7", wantErr: true},
		{name: "too many fields", input: "0 1 2 3 4.0 5 6 7 8 9", wantErr: true},
		{name: "non integer coordinate", input: "a 1 2 3 4.0 5 6 7 8", wantErr: true},
		{name: "float coordinate", input: "0.5 1 2 3 4.0 5 6 7 8", wantErr: true},
		{name: "bad width", input: "0 1 2 3 wide 5 6 7 8", wantErr: true},
		{name: "nan width", input: "0 1 2 3 NaN 5 6 7 8", wantErr: true},
		{name: "infinite width", input: "0 1 2 3 Inf 5 6 7 8", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLineString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if !errors.Is(err, ErrProtocol) {
					t.Errorf("expected ErrProtocol, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultUserName(t *testing.T) {
	if got := DefaultUserName(0); got != "User0" {
		t.Errorf("expected User0, got %s", got)
	}
	if got := DefaultUserName(12); got != "User12" {
		t.Errorf("expected User12, got %s", got)
	}
}

// Integer-width lines survive a trip through the wire form unchanged.
func TestLineWireFormProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("parsed wire form equals the original line", prop.ForAll(
		func(coords []int, width int, color []int) bool {
			l := Line{
				X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3],
				Width: float32(width),
				R:     color[0], G: color[1], B: color[2], A: color[3],
			}
			parsed, err := ParseLineString(l.String())
			if err != nil {
				return false
			}
			return parsed == l
		},
		gen.SliceOfN(4, gen.IntRange(-5000, 5000)),
		gen.IntRange(0, 100),
		gen.SliceOfN(4, gen.IntRange(0, 255)),
	))

	properties.TestingRun(t)
}
