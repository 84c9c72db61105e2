package acquire_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wshedlab/hydrodata/internal/acquire"
	"github.com/wshedlab/hydrodata/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDataset struct {
	dir           string
	climateErr    error
	landCoverErr  error
	climateCalls  int
	landCoverWith domain.LayerYears
}

func (d *fakeDataset) Climate(context.Context) error {
	d.climateCalls++
	return d.climateErr
}

func (d *fakeDataset) LandCover(_ context.Context, years domain.LayerYears) error {
	d.landCoverWith = years
	return d.landCoverErr
}

func (d *fakeDataset) Dir() string { return d.dir }

type fakeLoader struct {
	dataset *fakeDataset
	openErr error
	opened  []domain.Job
}

func (l *fakeLoader) Open(_ context.Context, job domain.Job) (acquire.Dataset, error) {
	l.opened = append(l.opened, job)
	if l.openErr != nil {
		return nil, l.openErr
	}
	return l.dataset, nil
}

func testJob(t *testing.T) domain.Job {
	t.Helper()
	job, err := domain.JobRequest{
		Start:     "2015-01-01",
		End:       "2015-12-31",
		StationID: "11092450",
		Climate:   true,
		NLCD:      true,
	}.Normalize()
	require.NoError(t, err)
	return job
}

func TestRunner_AppliesRequestedLayers(t *testing.T) {
	ds := &fakeDataset{dir: "/data/11092450"}
	loader := &fakeLoader{dataset: ds}
	runner := acquire.NewRunner(loader, discardLogger())

	dir, err := runner.Run(context.Background(), testJob(t))
	require.NoError(t, err)

	assert.Equal(t, "/data/11092450", dir)
	assert.Equal(t, 1, ds.climateCalls)
	assert.Equal(t, domain.DefaultLayerYears(), ds.landCoverWith)
}

func TestRunner_SkipsLayersNotRequested(t *testing.T) {
	ds := &fakeDataset{dir: "/data/x"}
	loader := &fakeLoader{dataset: ds}
	runner := acquire.NewRunner(loader, discardLogger())

	job := testJob(t)
	job.Climate = false
	job.NLCD = false

	_, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Zero(t, ds.climateCalls)
	assert.Nil(t, ds.landCoverWith)
}

func TestRunner_PropagatesOpenErrorUnmodified(t *testing.T) {
	sentinel := errors.New("delineation service is down")
	loader := &fakeLoader{openErr: sentinel}
	runner := acquire.NewRunner(loader, discardLogger())

	_, err := runner.Run(context.Background(), testJob(t))
	assert.ErrorIs(t, err, sentinel)
}

func TestRunner_PropagatesClimateError(t *testing.T) {
	sentinel := errors.New("climate fetch failed")
	loader := &fakeLoader{dataset: &fakeDataset{climateErr: sentinel}}
	runner := acquire.NewRunner(loader, discardLogger())

	_, err := runner.Run(context.Background(), testJob(t))
	assert.ErrorIs(t, err, sentinel)
}

func TestRunner_PropagatesLandCoverError(t *testing.T) {
	sentinel := errors.New("raster fetch failed")
	loader := &fakeLoader{dataset: &fakeDataset{landCoverErr: sentinel}}
	runner := acquire.NewRunner(loader, discardLogger())

	_, err := runner.Run(context.Background(), testJob(t))
	assert.ErrorIs(t, err, sentinel)
}

func TestRunner_PassesNormalizedJobThrough(t *testing.T) {
	loader := &fakeLoader{dataset: &fakeDataset{}}
	runner := acquire.NewRunner(loader, discardLogger())

	job := testJob(t)
	_, err := runner.Run(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, loader.opened, 1)
	assert.Equal(t, time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC), loader.opened[0].Start)
	assert.Equal(t, "./data", loader.opened[0].DataDir)
}
