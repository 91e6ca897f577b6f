package core

import "fmt"

// Number of bin grids per run.
const NumPasses = 2

// BinKey addresses one bin of one pass.
type BinKey struct {
	Pass int
	Bin  int
}

func (k BinKey) String() string {
	return fmt.Sprintf("b-%d-%d", k.Pass, k.Bin)
}
