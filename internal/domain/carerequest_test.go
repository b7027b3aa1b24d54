package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatusIsPreArrival(t *testing.T) {
	tests := []struct {
		status     RequestStatus
		preArrival bool
	}{
		{RequestStatusRequested, true},
		{RequestStatusAccepted, true},
		{RequestStatusScheduled, true},
		{RequestStatusCommitted, true},
		{RequestStatusOnRoute, false},
		{RequestStatusOnScene, false},
		{RequestStatusComplete, false},
		{RequestStatusArchived, false},
		{RequestStatus("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.preArrival, tt.status.IsPreArrival())
		})
	}
}

func TestLatestEtaRange(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	t.Run("no windows", func(t *testing.T) {
		snapshot := &CareRequestSnapshot{}
		assert.Nil(t, snapshot.LatestEtaRange())
	})

	t.Run("picks the most recently created window", func(t *testing.T) {
		snapshot := &CareRequestSnapshot{
			EtaRanges: []EtaRange{
				{ID: 1, CreatedAt: base},
				{ID: 3, CreatedAt: base.Add(2 * time.Hour)},
				{ID: 2, CreatedAt: base.Add(time.Hour)},
			},
		}

		latest := snapshot.LatestEtaRange()
		assert.Equal(t, int64(3), latest.ID)
	})
}
