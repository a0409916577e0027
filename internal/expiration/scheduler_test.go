package expiration

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idflow/internal/domain"
	"idflow/internal/testutil"
)

var testLogger = slog.New(slog.DiscardHandler)

func TestComputeStage(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		end  time.Time
		want domain.ExpirationStage
	}{
		{"far out", now.AddDate(0, 6, 0), domain.StageActive},
		{"just above warning", now.Add(31 * 24 * time.Hour), domain.StageActive},
		{"at warning boundary", now.Add(30 * 24 * time.Hour), domain.StageExpiringSoon},
		{"inside warning window", now.Add(28 * 24 * time.Hour), domain.StageExpiringSoon},
		{"at final notice boundary", now.Add(7 * 24 * time.Hour), domain.StageFinalNotice},
		{"one day left", now.Add(24 * time.Hour), domain.StageFinalNotice},
		{"ends later today", now.Add(6 * time.Hour), domain.StageFinalNotice},
		{"exactly now", now, domain.StageExpired},
		{"already past", now.Add(-time.Hour), domain.StageExpired},
		{"long past", now.AddDate(0, -2, 0), domain.StageExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeStage(tc.end, now, DefaultWarningDays, DefaultFinalNoticeDays)
			assert.Equal(t, tc.want, got)
		})
	}
}

func contractor(id, endDate string) domain.Principal {
	attrs := map[string]string{domain.AttrUserType: domain.UserTypeContractor}
	if endDate != "" {
		attrs[domain.AttrContractEndDate] = endDate
	}
	return domain.Principal{ID: id, Attributes: attrs, Status: domain.StatusActive}
}

func TestEvaluate_ExampleScenario(t *testing.T) {
	// Contractor 28 days from the end date with 30/7 thresholds.
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(28 * 24 * time.Hour)

	s := NewScheduler(testutil.NewMemStateRepo(), 30, 7, testLogger)
	p := contractor("u1", end.Format("2006-01-02"))
	p.Attributes[domain.AttrDepartment] = "Engineering"

	records, events, err := s.Evaluate(context.Background(), []domain.Principal{p}, now)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, domain.StageExpiringSoon, records[0].Stage)

	require.Len(t, events, 1)
	assert.Equal(t, domain.TransitionExpiration, events[0].Kind)
	assert.Equal(t, string(domain.StageExpiringSoon), events[0].To)
	assert.Equal(t, "u1", events[0].PrincipalID)
}

func TestEvaluate_MonotonicForward(t *testing.T) {
	state := testutil.NewMemStateRepo()
	s := NewScheduler(state, 30, 7, testLogger)
	ctx := context.Background()

	end := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	p := contractor("u1", end.Format("2006-01-02"))

	// Walk the clock forward; the stage may only advance.
	prev := domain.StageNoEndDate
	for _, now := range []time.Time{
		end.AddDate(0, -3, 0),
		end.Add(-20 * 24 * time.Hour),
		end.Add(-5 * 24 * time.Hour),
		end.Add(24 * time.Hour),
	} {
		records, _, err := s.Evaluate(ctx, []domain.Principal{p}, now)
		require.NoError(t, err)
		require.Len(t, records, 1)
		got := records[0].Stage
		assert.False(t, got.Before(prev), "stage went backward: %s after %s", got, prev)
		prev = got
	}
	assert.Equal(t, domain.StageExpired, prev)
}

func TestEvaluate_ClockRegressionDoesNotRegressStage(t *testing.T) {
	state := testutil.NewMemStateRepo()
	s := NewScheduler(state, 30, 7, testLogger)
	ctx := context.Background()

	end := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	p := contractor("u1", end.Format("2006-01-02"))

	_, _, err := s.Evaluate(ctx, []domain.Principal{p}, end.Add(-2*24*time.Hour))
	require.NoError(t, err)

	// Clock moved backward with the same end date: FinalNotice sticks.
	records, events, err := s.Evaluate(ctx, []domain.Principal{p}, end.AddDate(0, -2, 0))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StageFinalNotice, records[0].Stage)
	assert.Empty(t, events)
}

func TestEvaluate_EndDateChangeRegressesStage(t *testing.T) {
	state := testutil.NewMemStateRepo()
	s := NewScheduler(state, 30, 7, testLogger)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	p := contractor("u1", now.Add(3*24*time.Hour).Format("2006-01-02"))
	records, _, err := s.Evaluate(ctx, []domain.Principal{p}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinalNotice, records[0].Stage)

	// The contract got extended: stage drops back to Active.
	p = contractor("u1", now.AddDate(1, 0, 0).Format("2006-01-02"))
	records, events, err := s.Evaluate(ctx, []domain.Principal{p}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StageActive, records[0].Stage)
	require.Len(t, events, 1)
	assert.Equal(t, string(domain.StageFinalNotice), events[0].From)
	assert.Equal(t, string(domain.StageActive), events[0].To)
}

func TestEvaluate_SkipsNonContractors(t *testing.T) {
	s := NewScheduler(testutil.NewMemStateRepo(), 30, 7, testLogger)
	p := domain.Principal{ID: "emp", Attributes: map[string]string{
		domain.AttrUserType:        "employee",
		domain.AttrContractEndDate: "2026-01-01",
	}}

	records, events, err := s.Evaluate(context.Background(), []domain.Principal{p}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, events)
}

func TestEvaluate_NoEndDate(t *testing.T) {
	s := NewScheduler(testutil.NewMemStateRepo(), 30, 7, testLogger)

	records, events, err := s.Evaluate(context.Background(),
		[]domain.Principal{contractor("u1", "")}, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StageNoEndDate, records[0].Stage)
	assert.Nil(t, records[0].EndDate)
	assert.Empty(t, events)
}

func TestEvaluate_UnparsableEndDateIsNoEndDate(t *testing.T) {
	s := NewScheduler(testutil.NewMemStateRepo(), 30, 7, testLogger)

	records, _, err := s.Evaluate(context.Background(),
		[]domain.Principal{contractor("u1", "next spring")}, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StageNoEndDate, records[0].Stage)
}

func TestEvaluate_NoChangeNoEvents(t *testing.T) {
	state := testutil.NewMemStateRepo()
	s := NewScheduler(state, 30, 7, testLogger)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	p := contractor("u1", now.AddDate(0, 6, 0).Format("2006-01-02"))

	_, events, err := s.Evaluate(ctx, []domain.Principal{p}, now)
	require.NoError(t, err)
	require.Len(t, events, 1) // NoEndDate → Active on first sight

	_, events, err = s.Evaluate(ctx, []domain.Principal{p}, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}
