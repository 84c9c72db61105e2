package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/wshedlab/hydrodata/internal/domain"
)

func TestNewJobResult_StampsInjectedClock(t *testing.T) {
	frozen := time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(frozen))
	defer domain.SetClock(nil)

	res := domain.NewJobResult(3, "11092450", "/data/11092450", nil, 2*time.Second)

	assert.Equal(t, 3, res.Index)
	assert.Equal(t, "11092450", res.StationKey)
	assert.Equal(t, frozen, res.FinishedAt)
	assert.True(t, res.Succeeded())

	failed := domain.NewJobResult(4, "x", "", errors.New("boom"), time.Second)
	assert.False(t, failed.Succeeded())
}
