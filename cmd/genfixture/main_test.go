package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/malaria-risk-index/internal/engine/local"
	"github.com/couchcryptid/malaria-risk-index/internal/fixture"
	"github.com/couchcryptid/malaria-risk-index/internal/lst"
)

func TestRun_WritesCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nairobi.json.zst")
	var out bytes.Buffer
	err := run([]string{
		"-out", path,
		"-bbox", "36.6,-1.45,37.1,-1.15",
		"-size", "8",
		"-sensor", "L7",
		"-end", "2024-07-01",
	}, &out)
	require.NoError(t, err)

	c, err := local.OpenCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, fixture.DatasetIDs(lst.L7), c.IDs())
	assert.Equal(t, 8, c.Grid.W)
	assert.InDelta(t, 36.6, c.Grid.X0, 1e-12)
	assert.InDelta(t, -1.15, c.Grid.Y0, 1e-12)

	assert.Contains(t, out.String(), "wrote catalog: "+path)
	assert.Contains(t, out.String(), "sensor: L7, newest acquisition 2024-07-01")
	assert.Contains(t, out.String(), lst.NCEPWaterVapor)
}

func TestRun_SameSeedSameFile(t *testing.T) {
	dir := t.TempDir()
	args := func(name string) []string {
		return []string{"-out", filepath.Join(dir, name), "-bbox", "0,0,1,1", "-size", "4", "-end", "2024-07-01", "-seed", "7"}
	}
	require.NoError(t, run(args("a.json"), &bytes.Buffer{}))
	require.NoError(t, run(args("b.json"), &bytes.Buffer{}))

	a, err := local.OpenCatalog(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	b, err := local.OpenCatalog(filepath.Join(dir, "b.json"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_Errors(t *testing.T) {
	out := filepath.Join(t.TempDir(), "c.json")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no output", []string{"-bbox", "0,0,1,1"}, "missing required flag: -out"},
		{"no extent", []string{"-out", out}, "missing extent"},
		{"both extents", []string{"-out", out, "-bbox", "0,0,1,1", "-shapefile", "x.shp", "-region", "X"}, "not both"},
		{"bad sensor", []string{"-out", out, "-bbox", "0,0,1,1", "-sensor", "L9"}, "L9"},
		{"bad end", []string{"-out", out, "-bbox", "0,0,1,1", "-end", "yesterday"}, "invalid -end"},
		{"empty bbox", []string{"-out", out, "-bbox", "1,1,0,0"}, "bounds are empty"},
		{"missing shapefile", []string{"-out", out, "-shapefile", filepath.Join(t.TempDir(), "none.shp"), "-region", "X"}, "boundary shapefile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseBBox(t *testing.T) {
	b, err := parseBBox(" 36.6, -1.45 ,37.1,-1.15")
	require.NoError(t, err)
	assert.Equal(t, &geom.Bounds{Min: geom.Point{X: 36.6, Y: -1.45}, Max: geom.Point{X: 37.1, Y: -1.15}}, b)

	for _, s := range []string{"1,2,3", "a,b,c,d", ""} {
		_, err := parseBBox(s)
		assert.Error(t, err, s)
	}
}
