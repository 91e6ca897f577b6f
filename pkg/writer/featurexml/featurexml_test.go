package featurexml

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

func TestWriteRead(t *testing.T) {
	im := 0.875
	features := []core.MatchedFeature{
		{
			Feature: &core.Feature{
				RT: 100.5, MZ: 445.1203, Intensity: 2.5e6, Charge: 2, Quality: 0.8,
				Hull: orb.Ring{{99, 445.12}, {102, 445.12}, {102, 445.121}, {99, 445.12}},
			},
			IM: &im,
		},
		{
			Feature: &core.Feature{RT: 200, MZ: 600.3, Intensity: 10},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, features))
	assert.Contains(t, buf.String(), `<UserParam type="float" name="IM" value="0.875"></UserParam>`)

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 100.5, got[0].RT)
	assert.Equal(t, 445.1203, got[0].MZ)
	assert.Equal(t, 2, got[0].Charge)
	assert.Equal(t, features[0].Key(), got[0].ID)
	require.NotNil(t, got[0].IM)
	assert.Equal(t, 0.875, *got[0].IM)
	// closing point is not written
	assert.Len(t, got[0].Hull, 3)

	assert.Nil(t, got[1].IM)
	assert.Empty(t, got[1].Hull)
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.featureXML")
	features := []core.MatchedFeature{{Feature: &core.Feature{RT: 1, MZ: 2, Intensity: 3}}}
	require.NoError(t, WriteFile(path, features))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].MZ)
}

func TestReadOpenMSStyle(t *testing.T) {
	doc := `<?xml version="1.0" encoding="ISO-8859-1"?>
<featureMap version="1.9" id="fm_1" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
	<featureList count="1">
		<feature id="f_9151237744291385120">
			<position dim="0">1234.5</position>
			<position dim="1">721.3</position>
			<intensity>17000</intensity>
			<quality dim="0">0</quality>
			<quality dim="1">0</quality>
			<overallquality>0.91</overallquality>
			<charge>3</charge>
			<convexhull nr="0">
				<pt x="1230" y="721.29" />
				<pt x="1240" y="721.29" />
				<pt x="1240" y="721.31" />
			</convexhull>
		</feature>
	</featureList>
</featureMap>`

	got, err := Read(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(9151237744291385120), got[0].ID)
	assert.Equal(t, 0.91, got[0].Quality)
	assert.Len(t, got[0].Hull, 3)
}

func TestReadRejectsOtherDocuments(t *testing.T) {
	_, err := Read(strings.NewReader(`<mzML></mzML>`))
	if !errors.Is(err, ErrNotFeatureXML) {
		t.Errorf("Read() error = %v, want ErrNotFeatureXML", err)
	}
}
