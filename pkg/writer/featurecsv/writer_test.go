package featurecsv

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/match"
)

func TestWriteFeatureIMs(t *testing.T) {
	im := 1.05
	features := []core.MatchedFeature{
		{Feature: &core.Feature{RT: 120.5, MZ: 445.12}, IM: &im},
		{Feature: &core.Feature{RT: 130, MZ: 600.25}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFeatureIMs(&buf, features))
	assert.Equal(t, "RT,m/z,im\n120.5,445.12,1.05\n130,600.25,\n", buf.String())
}

func TestWriteFound(t *testing.T) {
	points := []core.RawPoint{{RT: 1, MZ: 2, Intensity: 30}, {RT: 4, MZ: 5, Intensity: 6}}

	var buf bytes.Buffer
	require.NoError(t, WriteFound(&buf, points, []bool{false, true}))
	assert.Equal(t, "RT,m/z,Intensity,Found\n1,2,30,\n4,5,6,FOUND\n", buf.String())

	assert.Error(t, WriteFound(&buf, points, []bool{true}))
}

func TestWriteBinIMs(t *testing.T) {
	ims := match.BinIMs{{0.7, 0.9}, {0.6, 0.8, 1}}
	path := filepath.Join(t.TempDir(), "bins-im.txt")
	require.NoError(t, WriteFile(path, func(w io.Writer) error { return WriteBinIMs(w, ims) }))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.7\n0.9\n0.6\n0.8\n1\n", string(got))
}
