package binning

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

func TestNewGrid(t *testing.T) {
	tests := []struct {
		name    string
		numBins int
		start   float64
		end     float64
		wantErr bool
	}{
		{"valid", 4, 0.5, 1.5, false},
		{"single bin", 1, 0.5, 1.5, false},
		{"single bin flat range", 1, 0.8, 0.8, false},
		{"flat range", 4, 0.8, 0.8, true},
		{"reversed", 4, 1.5, 0.5, true},
		{"no bins", 0, 0.5, 1.5, true},
		{"nan", 4, math.NaN(), 1.5, true},
		{"infinite end", 4, 0.5, math.Inf(1), true},
		{"infinite start", 4, math.Inf(-1), 1.5, true},
		{"single bin infinite", 1, 0.5, math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(tt.numBins, tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewGrid() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEmptyRange) {
				t.Errorf("NewGrid() error = %v, want ErrEmptyRange", err)
			}
		})
	}
}

func TestGridAssign(t *testing.T) {
	// size 0.25, offset 0.625
	grid, err := NewGrid(4, 0.5, 1.5)
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}

	tests := []struct {
		pass int
		im   float64
		want int
	}{
		{0, 0.5, 0},
		{0, 0.74, 0},
		{0, 0.75, 1},
		{0, 1.49, 3},
		{0, 1.5, 3},
		{0, 0.4, 0},
		{0, 2.0, 3},
		{1, 0.5, 0},
		{1, 0.6, 0},
		{1, 0.625, 1},
		{1, 0.75, 1},
		{1, 0.874, 1},
		{1, 0.875, 2},
		{1, 1.375, 4},
		{1, 1.5, 4},
		{1, 9.0, 4},
	}

	for _, tt := range tests {
		if got := grid.Assign(tt.pass, tt.im); got != tt.want {
			t.Errorf("Assign(%d, %v) = %d, want %d", tt.pass, tt.im, got, tt.want)
		}
	}
}

func TestGridBinCount(t *testing.T) {
	grid, _ := NewGrid(50, 0.6, 1.6)
	if got := grid.BinCount(0); got != 50 {
		t.Errorf("BinCount(0) = %d, want 50", got)
	}
	if got := grid.BinCount(1); got != 51 {
		t.Errorf("BinCount(1) = %d, want 51", got)
	}
	if got := len(grid.Keys()); got != 101 {
		t.Errorf("len(Keys()) = %d, want 101", got)
	}
	if k := grid.Keys()[50]; k != (core.BinKey{Pass: 1, Bin: 0}) {
		t.Errorf("Keys()[50] = %v, want pass 1 bin 0", k)
	}
}

func TestGridSingleBinDropsOffsetPass(t *testing.T) {
	grid, err := NewGrid(1, 0.6, 1.6)
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	if got := grid.Passes(); got != 1 {
		t.Errorf("Passes() = %d, want 1", got)
	}
	want := []core.BinKey{{Pass: 0, Bin: 0}}
	if got := grid.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	grid, _ = NewGrid(2, 0.6, 1.6)
	if got := grid.Passes(); got != core.NumPasses {
		t.Errorf("Passes() = %d, want %d", got, core.NumPasses)
	}
}

func TestGridCentersOffsetByHalfBin(t *testing.T) {
	for _, numBins := range []int{1, 2, 7, 50} {
		grid, err := NewGrid(numBins, 0.6, 1.6)
		if err != nil {
			t.Fatalf("NewGrid(%d) error = %v", numBins, err)
		}
		for bin := 0; bin < numBins; bin++ {
			diff := grid.Center(0, bin) - grid.Center(1, bin)
			if math.Abs(diff-grid.Size/2) > 1e-12 {
				t.Errorf("numBins=%d bin=%d: center offset = %v, want %v", numBins, bin, diff, grid.Size/2)
			}
		}
	}
}

func TestGridFlatRangeSingleBin(t *testing.T) {
	grid, err := NewGrid(1, 0.8, 0.8)
	if err != nil {
		t.Fatalf("NewGrid() error = %v", err)
	}
	for pass := 0; pass < core.NumPasses; pass++ {
		if got := grid.Assign(pass, 0.8); got != 0 {
			t.Errorf("Assign(%d, 0.8) = %d, want 0", pass, got)
		}
	}
}
