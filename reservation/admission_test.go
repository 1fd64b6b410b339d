package reservation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cafeteria-engine/events"
	"github.com/warp/cafeteria-engine/events/eventstest"
	"github.com/warp/cafeteria-engine/reservation"
	"github.com/warp/cafeteria-engine/reservation/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *reservation.Service
	store    *store.Memory
	recorder *eventstest.Recorder
	now      time.Time
}

func (f *fixture) setNow(t time.Time) { f.now = t }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveUser(ctx, reservation.User{
		ID: "user-u", Name: "Ana", Document: "123.456.789-00",
		Status: reservation.UserActive, UserType: reservation.UserFixed,
	}))
	require.NoError(t, mem.SaveUser(ctx, reservation.User{
		ID: "user-inactive", Name: "Bruno",
		Status: reservation.UserInactive, UserType: reservation.UserFixed,
	}))
	require.NoError(t, mem.SaveMenu(ctx, testMenu("menu-m", march10, true)))
	require.NoError(t, mem.SaveMenu(ctx, testMenu("menu-next", march10.AddDate(0, 0, 1), true)))
	require.NoError(t, mem.SaveMenu(ctx, testMenu("menu-off", march10.AddDate(0, 0, 2), false)))

	f := &fixture{store: mem, recorder: &eventstest.Recorder{}}
	f.svc = reservation.NewService(mem, mem, mem, nil)
	f.svc.Publisher = f.recorder
	f.svc.Now = func() time.Time { return f.now }
	f.setNow(time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC))
	return f
}

func testMenu(id string, date time.Time, active bool) reservation.Menu {
	return reservation.Menu{
		ID:        id,
		Date:      date,
		DayOfWeek: date.Weekday(),
		IsActive:  active,
		Compositions: []reservation.MenuComposition{
			{ID: id + "-c1", MenuID: id, MenuItemID: "item-chicken", IsMainProtein: true},
			{ID: id + "-c2", MenuID: id, MenuItemID: "item-egg", IsAlternativeProtein: true},
		},
		Variations: []reservation.MenuVariation{
			{ID: id + "-std", MenuID: id, VariationType: reservation.VariationStandard, ProteinItemID: "item-chicken", IsDefault: true},
			{ID: id + "-egg", MenuID: id, VariationType: reservation.VariationEggSubstitute, ProteinItemID: "item-egg"},
		},
	}
}

func createReq(userID, menuID, variationID string, date time.Time) reservation.CreateRequest {
	return reservation.CreateRequest{
		UserID:          userID,
		MenuID:          menuID,
		MenuVariationID: variationID,
		ReservationDate: date,
	}
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestAdmission_Scenario_CreateCancelRecreateAndLateUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Scenario 1: U creates a reservation for 2025-03-10 the day before
	first, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusActive, first.Status)
	assert.False(t, first.IsAutoGenerated)
	assert.Equal(t, "2025-03-10", reservation.FormatDate(first.ReservationDate))

	// Scenario 2: A second create for the same date is a conflict
	_, err = f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-egg", march10))
	require.Error(t, err)
	assert.True(t, reservation.IsConflict(err))
	assert.Equal(t, 409, reservation.StatusCode(err))
	assert.Contains(t, err.Error(), "already has an active reservation for this date")

	// Scenario 3: Cancel at 07:00 on the day, then book again
	f.setNow(time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC))
	cancelled, err := f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, cancelled.Status)

	second, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-egg", march10))
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusActive, second.Status)

	// Scenario 4: Updating after 08:30 on the day is rejected
	f.setNow(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC))
	std := "menu-m-std"
	_, err = f.svc.Update(ctx, second.ID, reservation.UpdateRequest{MenuVariationID: &std})
	require.Error(t, err)
	assert.True(t, reservation.IsBusinessRule(err))
	assert.Equal(t, 400, reservation.StatusCode(err))

	assert.Equal(t, []string{
		events.ReservationCreated,
		events.ReservationCancelled,
		events.ReservationCreated,
	}, f.recorder.RoutingKeys())
}

func TestAdmission_Scenario_LateUpdateOfOriginalReservation(t *testing.T) {
	// GIVEN: The reservation from scenario 1, still ACTIVE
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)

	// WHEN: Changing the variation at 09:00 on the reservation date
	f.setNow(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC))
	_, err = f.svc.ChangeMenuVariation(ctx, r.ID, "menu-m-egg")

	// THEN: The cutoff rejects it and nothing changes
	assert.True(t, reservation.IsBusinessRule(err))
	stored, err := f.svc.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "menu-m-std", stored.MenuVariationID)
}

// =============================================================================
// CREATE PRECONDITIONS
// =============================================================================

func TestAdmission_Create_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		req     reservation.CreateRequest
		check   func(error) bool
		message string
	}{
		{
			name:    "unknown user",
			req:     createReq("user-x", "menu-m", "menu-m-std", march10),
			check:   reservation.IsNotFound,
			message: "user user-x not found",
		},
		{
			name:    "inactive user",
			req:     createReq("user-inactive", "menu-m", "menu-m-std", march10),
			check:   reservation.IsBusinessRule,
			message: "not active",
		},
		{
			name:    "unknown menu",
			req:     createReq("user-u", "menu-x", "menu-m-std", march10),
			check:   reservation.IsNotFound,
			message: "menu menu-x not found",
		},
		{
			name:    "inactive menu",
			req:     createReq("user-u", "menu-off", "menu-off-std", march10.AddDate(0, 0, 2)),
			check:   reservation.IsBusinessRule,
			message: "menu menu-off is not active",
		},
		{
			name:    "past date",
			now:     time.Date(2025, time.March, 11, 7, 0, 0, 0, time.UTC),
			req:     createReq("user-u", "menu-m", "menu-m-std", march10),
			check:   reservation.IsBusinessRule,
			message: "past date",
		},
		{
			name:    "date differs from menu date",
			req:     createReq("user-u", "menu-m", "menu-m-std", march10.AddDate(0, 0, 1)),
			check:   reservation.IsBusinessRule,
			message: "does not match menu date",
		},
		{
			name:    "variation of another menu",
			req:     createReq("user-u", "menu-m", "menu-next-std", march10),
			check:   reservation.IsNotFound,
			message: "variation menu-next-std not found",
		},
		{
			name:    "same day after cutoff",
			now:     time.Date(2025, time.March, 10, 8, 30, 0, 0, time.UTC),
			req:     createReq("user-u", "menu-m", "menu-m-std", march10),
			check:   reservation.IsBusinessRule,
			message: "close at 08:30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if !tt.now.IsZero() {
				f.setNow(tt.now)
			}

			_, err := f.svc.Create(context.Background(), tt.req)

			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
			assert.Contains(t, err.Error(), tt.message)
			assert.Empty(t, f.recorder.Messages(), "rejected creates must not publish")
		})
	}
}

func TestAdmission_Create_SameDayBeforeCutoff(t *testing.T) {
	f := newFixture(t)
	f.setNow(time.Date(2025, time.March, 10, 8, 29, 59, 0, time.UTC))

	r, err := f.svc.Create(context.Background(), createReq("user-u", "menu-m", "menu-m-egg", march10))

	require.NoError(t, err)
	assert.Equal(t, "menu-m-egg", r.MenuVariationID)
}

func TestAdmission_Create_FailsFastInOrder(t *testing.T) {
	// GIVEN: A request that violates both the user rule and the menu rule
	f := newFixture(t)

	// WHEN: Creating
	_, err := f.svc.Create(context.Background(), createReq("user-inactive", "menu-x", "bogus", march10))

	// THEN: Only the first violation is reported
	assert.True(t, reservation.IsBusinessRule(err))
	assert.Contains(t, err.Error(), "user user-inactive is not active")
}

func TestAdmission_CreateAutoGenerated_FlagsReservation(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.CreateAutoGenerated(context.Background(), createReq("user-u", "menu-m", "menu-m-std", march10))

	require.NoError(t, err)
	assert.True(t, r.IsAutoGenerated)
}

func TestAdmission_Create_ConcurrentRequestsKeepOneActive(t *testing.T) {
	// GIVEN: Many simultaneous creates for the same user and date
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			variation := "menu-m-std"
			if i%2 == 1 {
				variation = "menu-m-egg"
			}
			_, err := f.svc.Create(ctx, createReq("user-u", "menu-m", variation, march10))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	// THEN: Exactly one wins, every other request is a conflict
	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, reservation.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	list, err := f.svc.FindByUserAndDateRange(ctx, "user-u", march10, march10)
	require.NoError(t, err)
	active := 0
	for _, r := range list {
		if r.IsActive() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

// =============================================================================
// UPDATE / CANCEL / REACTIVATE
// =============================================================================

func TestAdmission_Update_ChangesVariationOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)

	egg := "menu-m-egg"
	updated, err := f.svc.Update(ctx, r.ID, reservation.UpdateRequest{MenuVariationID: &egg})

	require.NoError(t, err)
	assert.Equal(t, "menu-m-egg", updated.MenuVariationID)
	assert.Equal(t, reservation.StatusActive, updated.Status)
	assert.Equal(t, events.ReservationUpdated, f.recorder.RoutingKeys()[1])
}

func TestAdmission_Update_RejectsVariationOfOtherMenu(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)

	_, err = f.svc.ChangeMenuVariation(ctx, r.ID, "menu-next-egg")
	assert.True(t, reservation.IsNotFound(err))

	_, err = f.svc.ChangeMenuVariation(ctx, r.ID, "")
	assert.True(t, reservation.IsBusinessRule(err))
}

func TestAdmission_Update_RequiresActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)

	egg := "menu-m-egg"
	_, err = f.svc.Update(ctx, r.ID, reservation.UpdateRequest{MenuVariationID: &egg})

	assert.True(t, reservation.IsBusinessRule(err))
	assert.Contains(t, err.Error(), "only active reservations")
}

func TestAdmission_Update_UnknownReservation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Update(context.Background(), "nope", reservation.UpdateRequest{})

	assert.True(t, reservation.IsNotFound(err))
}

func TestAdmission_Cancel_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)

	// Already cancelled
	_, err = f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, r.ID)
	assert.True(t, reservation.IsBusinessRule(err))
	assert.Contains(t, err.Error(), "already cancelled")

	// After cutoff on the day
	f.setNow(time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC))
	again, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)
	f.setNow(time.Date(2025, time.March, 10, 8, 30, 0, 0, time.UTC))
	_, err = f.svc.Cancel(ctx, again.ID)
	assert.True(t, reservation.IsBusinessRule(err))

	// The admin path ignores the cutoff
	cancelled, err := f.svc.AdminCancel(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, cancelled.Status)

	_, err = f.svc.AdminCancel(ctx, again.ID)
	assert.True(t, reservation.IsBusinessRule(err))
}

func TestAdmission_CancelReactivateCancel_KeepsVariation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-egg", march10))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)
	reactivated, err := f.svc.Reactivate(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusActive, reactivated.Status)
	assert.Equal(t, "menu-m-egg", reactivated.MenuVariationID)

	cancelled, err := f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "menu-m-egg", cancelled.MenuVariationID)
}

func TestAdmission_Reactivate_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)

	// Only cancelled reservations
	_, err = f.svc.Reactivate(ctx, r.ID)
	assert.True(t, reservation.IsBusinessRule(err))

	_, err = f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)

	// After the cutoff the user path is closed, the admin path is not
	f.setNow(time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC))
	_, err = f.svc.Reactivate(ctx, r.ID)
	assert.True(t, reservation.IsBusinessRule(err))

	reactivated, err := f.svc.AdminReactivate(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusActive, reactivated.Status)
}

func TestAdmission_Reactivate_ConflictsWithNewerActiveReservation(t *testing.T) {
	// GIVEN: A cancelled reservation and a newer ACTIVE one for the same date
	f := newFixture(t)
	ctx := context.Background()
	old, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, old.ID)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-egg", march10))
	require.NoError(t, err)

	// WHEN: Reactivating the old one, by user or admin
	_, err = f.svc.Reactivate(ctx, old.ID)
	assert.True(t, reservation.IsConflict(err))
	_, err = f.svc.AdminReactivate(ctx, old.ID)
	assert.True(t, reservation.IsConflict(err))
}

func TestAdmission_Reactivate_RequiresActiveMenu(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, r.ID)
	require.NoError(t, err)

	withdrawn := testMenu("menu-m", march10, false)
	require.NoError(t, f.store.SaveMenu(ctx, withdrawn))

	_, err = f.svc.Reactivate(ctx, r.ID)
	assert.True(t, reservation.IsBusinessRule(err))
	assert.Contains(t, err.Error(), "not active")
}

// =============================================================================
// READS
// =============================================================================

func TestAdmission_Reads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, createReq("user-u", "menu-m", "menu-m-std", march10))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, createReq("user-u", "menu-next", "menu-next-egg", march10.AddDate(0, 0, 1)))
	require.NoError(t, err)

	history, err := f.svc.FindByUser(ctx, "user-u")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "menu-next", history[0].MenuID, "newest date first")

	inRange, err := f.svc.FindByDateRange(ctx, march10, march10)
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	_, err = f.svc.FindByDateRange(ctx, march10, march10.AddDate(0, 0, -1))
	assert.True(t, reservation.IsBusinessRule(err))

	_, err = f.svc.FindByID(ctx, "missing")
	assert.True(t, reservation.IsNotFound(err))
}

// =============================================================================
// FAILURE INJECTION
// =============================================================================

type failingUsers struct{}

func (failingUsers) FindUserByID(context.Context, string) (*reservation.User, error) {
	return nil, fmt.Errorf("connection refused")
}

func (failingUsers) FindUsersByStatusAndType(context.Context, reservation.UserStatus, reservation.UserType) ([]reservation.User, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestAdmission_CollaboratorFailureIsOperational(t *testing.T) {
	f := newFixture(t)
	f.svc.Users = failingUsers{}

	_, err := f.svc.Create(context.Background(), createReq("user-u", "menu-m", "menu-m-std", march10))

	assert.True(t, reservation.IsOperational(err))
	assert.Equal(t, 500, reservation.StatusCode(err))
}
