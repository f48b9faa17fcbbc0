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

type mockSlotRepo struct {
	slots         map[string]models.Slot
	registrations map[string]int
	created       *models.Slot
	updated       *models.Slot
	published     map[string]bool
}

func (m *mockSlotRepo) FindByID(ctx context.Context, id string) (*models.Slot, error) {
	if s, ok := m.slots[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSlotRepo) FindDetailByID(ctx context.Context, id string) (*models.SlotDetail, error) {
	if s, ok := m.slots[id]; ok {
		return &models.SlotDetail{Slot: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSlotRepo) List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, int, error) {
	var list []models.Slot
	for _, s := range m.slots {
		list = append(list, s)
	}
	return list, len(list), nil
}

func (m *mockSlotRepo) Create(ctx context.Context, slot *models.Slot) error {
	if m.slots == nil {
		m.slots = make(map[string]models.Slot)
	}
	if slot.ID == "" {
		slot.ID = "slot-new"
	}
	m.slots[slot.ID] = *slot
	m.created = slot
	return nil
}

func (m *mockSlotRepo) Update(ctx context.Context, slot *models.Slot) error {
	m.slots[slot.ID] = *slot
	m.updated = slot
	return nil
}

func (m *mockSlotRepo) SetPublished(ctx context.Context, id string, published bool) error {
	if m.published == nil {
		m.published = make(map[string]bool)
	}
	m.published[id] = published
	return nil
}

func (m *mockSlotRepo) CountActiveRegistrations(ctx context.Context, slotID string) (int, error) {
	return m.registrations[slotID], nil
}

func (m *mockSlotRepo) ListPublishedOn(ctx context.Context, day time.Time) ([]models.Slot, error) {
	var list []models.Slot
	for _, s := range m.slots {
		if s.Published && !s.Cancelled && s.Date.Format("2006-01-02") == day.Format("2006-01-02") {
			list = append(list, s)
		}
	}
	return list, nil
}

type mockSlotCascader struct {
	cascaded   []string
	studentIDs []string
}

func (m *mockSlotCascader) CancelSlotCascade(ctx context.Context, slotID, cancelCode string) ([]string, error) {
	m.cascaded = append(m.cascaded, slotID)
	return m.studentIDs, nil
}

func (m *mockSlotCascader) CancelTypeByCode(ctx context.Context, code string) (*models.CancelType, error) {
	if code == "NOPE" {
		return nil, sql.ErrNoRows
	}
	return &models.CancelType{ID: "ct1", Code: code, Active: true}, nil
}

func (m *mockSlotCascader) ListActiveStudentIDsBySlot(ctx context.Context, slotID string) ([]string, error) {
	return m.studentIDs, nil
}

type mockCourseRefresher struct {
	refreshed []string
}

func (m *mockCourseRefresher) RefreshCourseSlotDates(ctx context.Context, courseID string) error {
	m.refreshed = append(m.refreshed, courseID)
	return nil
}

type mockSlotNotifier struct {
	modified  map[string][]string
	cancelled map[string][]string
	reminded  map[string][]string
}

func (m *mockSlotNotifier) SlotModified(ctx context.Context, slot *models.Slot, studentIDs []string) {
	if m.modified == nil {
		m.modified = make(map[string][]string)
	}
	m.modified[slot.ID] = studentIDs
}

func (m *mockSlotNotifier) SlotCancelled(ctx context.Context, slot *models.Slot, studentIDs []string) {
	if m.cancelled == nil {
		m.cancelled = make(map[string][]string)
	}
	m.cancelled[slot.ID] = studentIDs
}

func (m *mockSlotNotifier) SlotReminder(ctx context.Context, slot *models.Slot, studentIDs []string) {
	if m.reminded == nil {
		m.reminded = make(map[string][]string)
	}
	m.reminded[slot.ID] = studentIDs
}

type slotFixture struct {
	repo     *mockSlotRepo
	cascader *mockSlotCascader
	courses  *mockCourseRefresher
	notifier *mockSlotNotifier
	svc      *SlotService
}

func newSlotFixture(t *testing.T) *slotFixture {
	t.Helper()
	slot := testSlot()
	f := &slotFixture{
		repo:     &mockSlotRepo{slots: map[string]models.Slot{slot.ID: slot}, registrations: map[string]int{}},
		cascader: &mockSlotCascader{},
		courses:  &mockCourseRefresher{},
		notifier: &mockSlotNotifier{},
	}
	periods := NewPeriodService(&mockPeriodRepo{periods: []models.Period{testPeriod()}}, zap.NewNop())
	f.svc = NewSlotService(f.repo, f.cascader, f.courses, periods, f.notifier, nil, nil, zap.NewNop())
	return f
}

func TestSlotServiceCreate(t *testing.T) {
	f := newSlotFixture(t)

	slot, err := f.svc.Create(context.Background(), CreateSlotRequest{
		CourseID: "c1", Date: "2026-10-20", StartTime: "09:00", EndTime: "11:00", NPlaces: 12,
		AllowIndividual: true, AllowedLevels: []string{"PREMIERE", "TERMINALE"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PREMIERE", "TERMINALE"}, []string(slot.SavedAllowedLevels),
		"level snapshot starts equal to the level set")
	assert.Contains(t, f.courses.refreshed, "c1")
}

func TestSlotServiceCreateOutsideAnyPeriod(t *testing.T) {
	f := newSlotFixture(t)

	_, err := f.svc.Create(context.Background(), CreateSlotRequest{
		CourseID: "c1", Date: "2027-03-01", StartTime: "09:00", EndTime: "11:00", NPlaces: 12,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoPeriodForSlot.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceCreateInvertedTimes(t *testing.T) {
	f := newSlotFixture(t)

	_, err := f.svc.Create(context.Background(), CreateSlotRequest{
		CourseID: "c1", Date: "2026-10-20", StartTime: "11:00", EndTime: "09:00", NPlaces: 12,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceUpdateFrozenFields(t *testing.T) {
	f := newSlotFixture(t)
	f.repo.registrations["sl1"] = 3
	manager := &models.ImmersionUser{ID: "mgr", Role: models.RoleStructureManager, Active: true}
	newStart := "10:00"

	_, err := f.svc.Update(context.Background(), "sl1", UpdateSlotRequest{StartTime: &newStart}, manager)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotHasRegistrations.Code, appErrors.FromError(err).Code)

	// operators may still edit, and registrants get notified
	f.cascader.studentIDs = []string{"st1", "st2"}
	operator := &models.ImmersionUser{ID: "op", Role: models.RoleOperator, Active: true}
	updated, err := f.svc.Update(context.Background(), "sl1", UpdateSlotRequest{StartTime: &newStart}, operator)
	require.NoError(t, err)
	assert.Equal(t, "10:00", updated.StartTime)
	assert.Equal(t, []string{"st1", "st2"}, f.notifier.modified["sl1"])
}

func TestSlotServiceUpdateNonFrozenWithRegistrations(t *testing.T) {
	f := newSlotFixture(t)
	f.repo.registrations["sl1"] = 3
	manager := &models.ImmersionUser{ID: "mgr", Role: models.RoleStructureManager, Active: true}
	places := 20

	updated, err := f.svc.Update(context.Background(), "sl1", UpdateSlotRequest{NPlaces: &places}, manager)
	require.NoError(t, err)
	assert.Equal(t, 20, updated.NPlaces)
}

func TestSlotServiceUpdateLevelsKeepsSnapshot(t *testing.T) {
	f := newSlotFixture(t)
	slot := f.repo.slots["sl1"]
	slot.AllowedLevels = []string{"PREMIERE"}
	slot.SavedAllowedLevels = []string{"PREMIERE"}
	f.repo.slots["sl1"] = slot
	manager := &models.ImmersionUser{ID: "mgr", Role: models.RoleStructureManager, Active: true}

	updated, err := f.svc.Update(context.Background(), "sl1", UpdateSlotRequest{
		AllowedLevels: []string{"TERMINALE"},
	}, manager)
	require.NoError(t, err)
	assert.Equal(t, []string{"TERMINALE"}, []string(updated.AllowedLevels))
	assert.Equal(t, []string{"PREMIERE"}, []string(updated.SavedAllowedLevels),
		"registered pupils keep the set in force when they registered")
}

func TestSlotServiceCancelCascades(t *testing.T) {
	f := newSlotFixture(t)
	f.cascader.studentIDs = []string{"pupil-1", "pupil-2"}

	require.NoError(t, f.svc.Cancel(context.Background(), "sl1", "ANN"))
	assert.Contains(t, f.cascader.cascaded, "sl1")
	assert.Equal(t, []string{"pupil-1", "pupil-2"}, f.notifier.cancelled["sl1"])
}

type mockSlotSettings struct {
	days int
}

func (m *mockSlotSettings) Int(ctx context.Context, name string, fallback int) int {
	if m.days == 0 {
		return fallback
	}
	return m.days
}

func TestSlotServiceGetHidesRemoteURLOutsideWindow(t *testing.T) {
	f := newSlotFixture(t)
	f.svc.settings = &mockSlotSettings{days: 4}
	url := "https://visio.example/room"
	far := f.repo.slots["sl1"]
	far.URL = &url
	far.Date = time.Now().AddDate(0, 0, 30)
	f.repo.slots["sl1"] = far

	pupil := &models.ImmersionUser{ID: "pupil-1", Role: models.RolePupil, Active: true}
	detail, err := f.svc.Get(context.Background(), "sl1", pupil)
	require.NoError(t, err)
	assert.Nil(t, detail.URL)

	manager := &models.ImmersionUser{ID: "mgr", Role: models.RoleStructureManager, Active: true}
	detail, err = f.svc.Get(context.Background(), "sl1", manager)
	require.NoError(t, err)
	require.NotNil(t, detail.URL)
	assert.Equal(t, url, *detail.URL)

	soon := far
	soon.Date = time.Now().AddDate(0, 0, 1)
	f.repo.slots["sl1"] = soon
	detail, err = f.svc.Get(context.Background(), "sl1", pupil)
	require.NoError(t, err)
	require.NotNil(t, detail.URL)
}

func TestSlotServiceCancelRefusals(t *testing.T) {
	f := newSlotFixture(t)

	err := f.svc.Cancel(context.Background(), "sl1", "NOPE")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	slot := f.repo.slots["sl1"]
	slot.Cancelled = true
	f.repo.slots["sl1"] = slot
	err = f.svc.Cancel(context.Background(), "sl1", "ANN")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceSendReminders(t *testing.T) {
	f := newSlotFixture(t)
	f.svc.settings = &mockSlotSettings{days: 3}
	f.cascader.studentIDs = []string{"st1", "st2"}
	slot := f.repo.slots["sl1"]
	slot.Date = time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)
	f.repo.slots["sl1"] = slot

	count, err := f.svc.SendReminders(context.Background(), time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"st1", "st2"}, f.notifier.reminded["sl1"])
}

func TestSlotServiceSendRemindersSkipsCancelledAndEmpty(t *testing.T) {
	f := newSlotFixture(t)
	day := time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC)
	slot := f.repo.slots["sl1"]
	slot.Date = day
	f.repo.slots["sl1"] = slot
	cancelled := slot
	cancelled.ID = "sl2"
	cancelled.Cancelled = true
	f.repo.slots["sl2"] = cancelled

	// no registrants on sl1, sl2 is cancelled
	count, err := f.svc.SendReminders(context.Background(), day.AddDate(0, 0, -4))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.notifier.reminded)
}
