package regions

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		name   string
		region domain.Region
	}{
		{"polygon", domain.Region{Name: "Southern", Geometry: square(29, -3, 1)}},
		{"multipolygon", domain.Region{Name: "Kigali City", Geometry: geom.MultiPolygon{square(30, -2, 1), square(31, -2, 1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.Put(tt.region))

			got, ok, err := s.Get(tt.region.Name)
			require.NoError(t, err)
			require.True(t, ok)
			if diff := cmp.Diff(tt.region, got); diff != "" {
				t.Errorf("region mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_Missing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get("Eastern")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Overwrite(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put(domain.Region{Name: "Western", Geometry: square(0, 0, 1)}))
	require.NoError(t, s.Put(domain.Region{Name: "Western", Geometry: square(5, 5, 2)}))

	got, ok, err := s.Get("Western")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 5, got.Geometry.Bounds().Min.X, 0)
	assert.InDelta(t, 7, got.Geometry.Bounds().Max.X, 0)
}
