package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.db")
	w, err := NewWriter(path)
	require.NoError(t, err)

	runID, err := w.WriteRun(Run{InputFile: "sample.mzML", NumBins: 2, IMStart: 0.6, IMEnd: 1.6})
	require.NoError(t, err)
	require.NotEqual(t, "", runID.String())

	require.NoError(t, w.WriteBin(Bin{Pass: 0, Bin: 1, CenterIM: 1.35, AverageIM: 1.3, Points: 10, Features: 2}))

	im := 0.95
	hull := orb.Ring{{10, 500}, {12, 500}, {12, 500.01}, {10, 500}}
	require.NoError(t, w.WriteFeature(core.MatchedFeature{
		Feature: &core.Feature{RT: 11, MZ: 500.005, Intensity: 1e5, Hull: hull},
		IM:      &im,
	}))
	require.NoError(t, w.WriteFeature(core.MatchedFeature{
		Feature: &core.Feature{RT: 20, MZ: 600.1, Intensity: 10},
	}))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM FeatureTable WHERE RunId = ?`, runID.String()).Scan(&count))
	assert.Equal(t, 2, count)

	var gotIM sql.NullFloat64
	var hullRT []byte
	require.NoError(t, db.QueryRow(`SELECT IonMobility, blobHullRT FROM FeatureTable WHERE RetentionTime = 11`).Scan(&gotIM, &hullRT))
	assert.True(t, gotIM.Valid)
	assert.Equal(t, 0.95, gotIM.Float64)
	rts, err := store.DecodeFloat64s(hullRT)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 12, 12, 10}, rts)

	require.NoError(t, db.QueryRow(`SELECT IonMobility FROM FeatureTable WHERE RetentionTime = 20`).Scan(&gotIM))
	assert.False(t, gotIM.Valid)

	var avg float64
	require.NoError(t, db.QueryRow(`SELECT AverageIonMobility FROM BinTable WHERE Pass = 0 AND Bin = 1`).Scan(&avg))
	assert.Equal(t, 1.3, avg)
}

func TestWriterRequiresRun(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "features.db"))
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.WriteFeature(core.MatchedFeature{Feature: &core.Feature{RT: 1}}))
	assert.Error(t, w.WriteBin(Bin{}))
}
