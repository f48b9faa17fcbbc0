package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type mockPeriodRepo struct {
	periods []models.Period
	created *models.Period
}

func (m *mockPeriodRepo) FindByID(ctx context.Context, id string) (*models.Period, error) {
	for _, p := range m.periods {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPeriodRepo) List(ctx context.Context) ([]models.Period, error) {
	return m.periods, nil
}

func (m *mockPeriodRepo) ListForYear(ctx context.Context, year int) ([]models.Period, error) {
	var list []models.Period
	for _, p := range m.periods {
		if p.ImmersionStartDate.Year() <= year && p.ImmersionEndDate.Year() >= year {
			list = append(list, p)
		}
	}
	return list, nil
}

func (m *mockPeriodRepo) ForDate(ctx context.Context, d time.Time) (*models.Period, error) {
	for _, p := range m.periods {
		if p.Covers(d) {
			return &p, nil
		}
	}
	return nil, appErrors.ErrNoPeriodForSlot
}

func (m *mockPeriodRepo) Create(ctx context.Context, period *models.Period) error {
	m.created = period
	m.periods = append(m.periods, *period)
	return nil
}

func testPeriod() models.Period {
	return models.Period{
		ID:                     "p1",
		Label:                  "Semestre 1",
		RegistrationStartDate:  time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		RegistrationEndDate:    time.Date(2026, 10, 15, 23, 59, 59, 0, time.UTC),
		ImmersionStartDate:     time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		ImmersionEndDate:       time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		CancellationLimitHours: 24,
		RegistrationEndPolicy:  models.PolicyPeriodEnd,
		YearQuota:              6,
		EarlyRegistrationSlots: 2,
	}
}

func testSlot() models.Slot {
	return models.Slot{
		ID:              "sl1",
		CourseID:        "c1",
		Date:            time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		StartTime:       "09:00",
		EndTime:         "11:00",
		NPlaces:         10,
		Published:       true,
		AllowIndividual: true,
	}
}

func TestPeriodServiceRegistrationOpenBoundary(t *testing.T) {
	svc := NewPeriodService(&mockPeriodRepo{}, zap.NewNop())
	period := testPeriod()
	slot := testSlot()

	open, err := svc.RegistrationOpen(&period, &slot, period.RegistrationEndDate)
	require.NoError(t, err)
	assert.True(t, open, "the exact end instant is still open")

	open, err = svc.RegistrationOpen(&period, &slot, period.RegistrationEndDate.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, open, "one second past the end is closed")

	open, err = svc.RegistrationOpen(&period, &slot, period.RegistrationStartDate.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, open, "before the window opens")
}

func TestPeriodServiceRegistrationOpenSlotStartPolicy(t *testing.T) {
	svc := NewPeriodService(&mockPeriodRepo{}, zap.NewNop())
	period := testPeriod()
	period.RegistrationEndPolicy = models.PolicySlotStart
	slot := testSlot()

	start, err := slot.StartDateTime()
	require.NoError(t, err)

	open, err := svc.RegistrationOpen(&period, &slot, start)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = svc.RegistrationOpen(&period, &slot, start.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestPeriodServiceCancellationCutoff(t *testing.T) {
	svc := NewPeriodService(&mockPeriodRepo{}, zap.NewNop())
	period := testPeriod()
	slot := testSlot()

	cutoff, err := svc.CancellationCutoff(&period, &slot)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), cutoff)

	open, err := svc.CancellationOpen(&period, &slot, cutoff)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = svc.CancellationOpen(&period, &slot, cutoff.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestPeriodServiceCancellationCutoffSlotOverride(t *testing.T) {
	svc := NewPeriodService(&mockPeriodRepo{}, zap.NewNop())
	period := testPeriod()
	slot := testSlot()
	limit := 48
	slot.CancellationLimitHours = &limit

	cutoff, err := svc.CancellationCutoff(&period, &slot)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC), cutoff)

	// a slot limit smaller than the period's does not shrink the delay
	smaller := 12
	slot.CancellationLimitHours = &smaller
	cutoff, err = svc.CancellationCutoff(&period, &slot)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), cutoff)
}

func TestPeriodServiceAttendanceEditable(t *testing.T) {
	svc := NewPeriodService(&mockPeriodRepo{}, zap.NewNop())
	slot := testSlot()

	end, err := slot.EndDateTime()
	require.NoError(t, err)

	editable, err := svc.AttendanceEditable(&slot, end.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, editable, "attendance stays locked while the slot runs")

	editable, err = svc.AttendanceEditable(&slot, end)
	require.NoError(t, err)
	assert.True(t, editable)
}

func TestPeriodServiceForSlotNoPeriod(t *testing.T) {
	svc := NewPeriodService(&mockPeriodRepo{}, zap.NewNop())
	slot := testSlot()

	_, err := svc.ForSlot(context.Background(), &slot)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoPeriodForSlot.Code, appErrors.FromError(err).Code)
}

func TestPeriodServiceListByYear(t *testing.T) {
	spring := testPeriod()
	spring.ID = "p2"
	spring.Label = "Semestre 2"
	spring.ImmersionStartDate = time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)
	spring.ImmersionEndDate = time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)
	svc := NewPeriodService(&mockPeriodRepo{periods: []models.Period{testPeriod(), spring}}, zap.NewNop())

	all, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only2027, err := svc.List(context.Background(), 2027)
	require.NoError(t, err)
	require.Len(t, only2027, 1)
	assert.Equal(t, "Semestre 2", only2027[0].Label)
}
