// Package acquire executes single acquisition jobs against a
// dataset-loading collaborator.
package acquire

import (
	"context"
	"log/slog"

	"github.com/wshedlab/hydrodata/internal/domain"
)

// Dataset is one opened station dataset. Augmentation steps are separate
// so a job only pays for the layers it asked for.
type Dataset interface {
	// Climate downloads the climate series for the job's date window.
	Climate(ctx context.Context) error

	// LandCover downloads one land-cover layer per entry in years.
	LandCover(ctx context.Context, years domain.LayerYears) error

	// Dir returns the dataset's output directory.
	Dir() string
}

// DatasetLoader resolves a job to an opened Dataset. Open performs the
// base acquisition (directory creation, watershed resolution); the
// optional layers are fetched through the returned Dataset.
type DatasetLoader interface {
	Open(ctx context.Context, job domain.Job) (Dataset, error)
}

// Runner executes one normalized job. It performs no local recovery:
// collaborator errors propagate unmodified, which keeps the runner a
// single logical unit of work for the dispatcher's workers.
type Runner struct {
	loader DatasetLoader
	logger *slog.Logger
}

// NewRunner creates a Runner over the given loader.
func NewRunner(loader DatasetLoader, logger *slog.Logger) *Runner {
	return &Runner{loader: loader, logger: logger}
}

// Run opens the dataset, applies the requested augmentation steps, and
// returns the output directory.
func (r *Runner) Run(ctx context.Context, job domain.Job) (string, error) {
	ds, err := r.loader.Open(ctx, job)
	if err != nil {
		return "", err
	}

	if job.Climate {
		if err := ds.Climate(ctx); err != nil {
			return "", err
		}
	}
	if job.NLCD {
		if err := ds.LandCover(ctx, job.Years); err != nil {
			return "", err
		}
	}

	r.logger.Debug("job finished", "station", job.StationKey(), "dir", ds.Dir())
	return ds.Dir(), nil
}
