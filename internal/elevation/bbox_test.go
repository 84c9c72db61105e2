package elevation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/geocode"
	"github.com/wshedlab/hydrodata/internal/request"
)

const testGrid = `ncols 2
nrows 2
xllcorner -98.0
yllcorner 30.0
cellsize 0.5
NODATA_value -9999
10 20
30 -9999
`

type fixedGeocoder struct {
	place geocode.Place
	calls int
}

func (g *fixedGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (geocode.Place, error) {
	g.calls++
	return g.place, nil
}

func testSampler(t *testing.T, clipURL string) (*BBoxSampler, *fixedGeocoder) {
	t.Helper()
	gc := &fixedGeocoder{place: geocode.Place{StateCode: "TX", County: "Travis County"}}
	rc := request.New(discardLogger())
	return NewBBoxSampler(rc, gc, clipURL, testMetrics(), discardLogger()), gc
}

func TestBBoxSampler_FetchAndSample(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		assert.Equal(t, "SRTMGL3", r.URL.Query().Get("demtype"))
		assert.Equal(t, "AAIGrid", r.URL.Query().Get("outputFormat"))
		assert.Equal(t, "-98.000000", r.URL.Query().Get("west"))
		_, _ = w.Write([]byte(testGrid))
	}))
	defer srv.Close()

	outDir := t.TempDir()
	s, _ := testSampler(t, srv.URL)
	bbox := BBox{-98, 30, -97, 31}

	coords := []domain.Coord{
		{Lon: -97.75, Lat: 30.25}, // south-west cell
		{Lon: -97.25, Lat: 30.75}, // north-east cell
	}
	elevs, err := s.Sample(context.Background(), bbox, coords, outDir)
	require.NoError(t, err)
	require.Len(t, elevs, 2)
	assert.Equal(t, 30.0, elevs[0])
	assert.Equal(t, 20.0, elevs[1])

	// Clip file is named from the county plus a bbox digest.
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "Travis_County-"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".asc"))

	// Second call must reuse the cached clip.
	_, err = s.Sample(context.Background(), bbox, coords, outDir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fetches.Load(), "cached clip must not be re-fetched")
}

func TestBBoxSampler_SkipsFetchWhenFilePresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("clip service must not be called when the file exists")
	}))
	defer srv.Close()

	outDir := t.TempDir()
	s, _ := testSampler(t, srv.URL)
	bbox := BBox{-98, 30, -97, 31}

	// Pre-seed the cache file under the expected key.
	path := filepath.Join(outDir, cacheKey("Travis County", bbox))
	require.NoError(t, os.WriteFile(path, []byte(testGrid), 0o644))

	elevs, err := s.Sample(context.Background(), bbox,
		[]domain.Coord{{Lon: -97.75, Lat: 30.75}}, outDir)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, elevs)
}

func TestBBoxSampler_NoDataCell(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testGrid))
	}))
	defer srv.Close()

	s, _ := testSampler(t, srv.URL)
	_, err := s.Sample(context.Background(), BBox{-98, 30, -97, 31},
		[]domain.Coord{{Lon: -97.25, Lat: 30.25}}, t.TempDir())
	require.ErrorIs(t, err, domain.ErrOutOfDomain)
}

func TestBBoxSampler_CoordinateOutsideClip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testGrid))
	}))
	defer srv.Close()

	s, _ := testSampler(t, srv.URL)
	_, err := s.Sample(context.Background(), BBox{-98, 30, -97, 31},
		[]domain.Coord{{Lon: -50, Lat: 10}}, t.TempDir())
	require.ErrorIs(t, err, domain.ErrOutOfDomain)
	assert.Contains(t, err.Error(), "outside the clipped grid")
}

func TestBBoxSampler_InvalidBox(t *testing.T) {
	s, gc := testSampler(t, "http://unused")
	_, err := s.Sample(context.Background(), BBox{-97, 30, -98, 31},
		[]domain.Coord{{Lon: -97.5, Lat: 30.5}}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bounding box")
	assert.Zero(t, gc.calls)
}

func TestCacheKey_DistinctBoxesSameCounty(t *testing.T) {
	a := cacheKey("Travis County", BBox{-98, 30, -97, 31})
	b := cacheKey("Travis County", BBox{-98, 30, -97.5, 30.5})
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "Travis_County-"))
}

func TestParseAAIGrid_CenterReferencedOrigin(t *testing.T) {
	// Same raster as testGrid, with the origin given as the center of the
	// south-west cell instead of its corner.
	const centerGrid = `ncols 2
nrows 2
xllcenter -97.75
yllcenter 30.25
cellsize 0.5
NODATA_value -9999
10 20
30 -9999
`
	g, err := parseAAIGrid(strings.NewReader(centerGrid))
	require.NoError(t, err)
	assert.Equal(t, -98.0, g.xll)
	assert.Equal(t, 30.0, g.yll)

	v, err := g.sample(-97.75, 30.25)
	require.NoError(t, err)
	assert.Equal(t, 30.0, v, "south-west cell")

	v, err = g.sample(-97.25, 30.75)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v, "north-east cell")
}

func TestParseAAIGrid_NoDataAfterCellsize(t *testing.T) {
	g, err := parseAAIGrid(strings.NewReader(testGrid))
	require.NoError(t, err)
	assert.Equal(t, -9999.0, g.nodata)
	require.Len(t, g.cells, 2)

	_, err = g.sample(-97.25, 30.25)
	require.ErrorIs(t, err, domain.ErrOutOfDomain)
}

func TestParseAAIGrid_Malformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "short row", body: "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -9999\n5\n"},
		{name: "missing rows", body: "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -9999\n1 2\n"},
		{name: "non numeric", body: "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -9999\nabc\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseAAIGrid(strings.NewReader(tc.body))
			require.Error(t, err)
		})
	}
}
