package autoreservation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cafeteria-engine/autoreservation"
	"github.com/warp/cafeteria-engine/events"
	"github.com/warp/cafeteria-engine/events/eventstest"
	"github.com/warp/cafeteria-engine/reservation"
	"github.com/warp/cafeteria-engine/reservation/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

// withdrawingMenus serves the menu for the first `served` date lookups and
// reports no menu afterwards, as if an admin withdrew it mid-batch.
type withdrawingMenus struct {
	reservation.MenuRepository
	mu     sync.Mutex
	calls  int
	served int
}

func (w *withdrawingMenus) FindMenuByDate(ctx context.Context, date time.Time) (*reservation.Menu, error) {
	w.mu.Lock()
	w.calls++
	withdrawn := w.calls > w.served
	w.mu.Unlock()
	if withdrawn {
		return nil, nil
	}
	return w.MenuRepository.FindMenuByDate(ctx, date)
}

type failingUsers struct{ reservation.UserRepository }

func (failingUsers) FindUsersByStatusAndType(context.Context, reservation.UserStatus, reservation.UserType) ([]reservation.User, error) {
	return nil, errors.New("database unreachable")
}

type env struct {
	store     *store.Memory
	service   *reservation.Service
	processor *autoreservation.Processor
	recorder  *eventstest.Recorder
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	users := []reservation.User{
		{ID: "user-a", Name: "Ana", Status: reservation.UserActive, UserType: reservation.UserFixed},
		{ID: "user-b", Name: "Bia", Status: reservation.UserActive, UserType: reservation.UserFixed},
		{ID: "user-c", Name: "Caio", Status: reservation.UserActive, UserType: reservation.UserFixed},
		{ID: "user-d", Name: "Davi", Status: reservation.UserActive, UserType: reservation.UserNonFixed},
		{ID: "user-e", Name: "Eva", Status: reservation.UserInactive, UserType: reservation.UserFixed},
	}
	for _, u := range users {
		require.NoError(t, mem.SaveUser(ctx, u))
	}
	require.NoError(t, mem.SaveMenu(ctx, menuFor("menu-0310", march10)))

	clock := func() time.Time { return now }
	rec := &eventstest.Recorder{}
	svc := reservation.NewService(mem, mem, mem, nil)
	svc.Now = clock
	svc.Publisher = rec

	proc := autoreservation.NewProcessor(mem, mem, mem, svc, nil)
	proc.Now = clock
	proc.Publisher = rec

	return &env{store: mem, service: svc, processor: proc, recorder: rec}
}

func menuFor(id string, date time.Time) reservation.Menu {
	return reservation.Menu{
		ID:       id,
		Date:     date,
		IsActive: true,
		Variations: []reservation.MenuVariation{
			{ID: id + "-egg", MenuID: id, VariationType: reservation.VariationEggSubstitute},
			{ID: id + "-std", MenuID: id, VariationType: reservation.VariationStandard, IsDefault: true},
		},
	}
}

// =============================================================================
// BATCH SCENARIO
// =============================================================================

func TestBatch_Scenario_SuccessFailureAndSkip(t *testing.T) {
	// GIVEN: Three eligible users for 2025-03-10.
	//   user-a: nothing booked            -> gets the default variation
	//   user-b: already holds a booking   -> skipped
	//   user-c: menu gone by their turn   -> failure
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := e.service.Create(ctx, reservation.CreateRequest{
		UserID: "user-b", MenuID: "menu-0310", MenuVariationID: "menu-0310-egg", ReservationDate: march10,
	})
	require.NoError(t, err)
	e.processor.Menus = &withdrawingMenus{MenuRepository: e.store, served: 1}

	// WHEN: Running the batch for the date
	result, err := e.processor.CreateAutoReservationsForDate(ctx, march10)

	// THEN: One success, one failure, the pre-existing booking is a no-op
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalUsers)
	assert.Equal(t, 1, result.SuccessfulReservations)
	assert.Equal(t, 1, result.FailedReservations)
	assert.Equal(t, 1, result.SkippedReservations)
	assert.Equal(t, "2025-03-10", reservation.FormatDate(result.Date))
	assert.False(t, result.ProcessedAt.IsZero())

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "user-c", result.Errors[0].UserID)
	assert.Contains(t, result.Errors[0].Message, "no active menu")
	assert.Equal(t, 400, result.Errors[0].StatusCode)

	require.Len(t, result.Results, 3)
	assert.Equal(t, autoreservation.OutcomeCreated, result.Results[0].Outcome)
	assert.Equal(t, "menu-0310-std", result.Results[0].MenuVariationID)
	assert.Equal(t, autoreservation.OutcomeSkipped, result.Results[1].Outcome)
	assert.Equal(t, autoreservation.OutcomeFailed, result.Results[2].Outcome)

	// And the auto reservation is flagged, the user's own booking untouched
	auto, err := e.store.FindReservationByUserAndDate(ctx, "user-a", march10)
	require.NoError(t, err)
	assert.True(t, auto.IsAutoGenerated)
	own, err := e.store.FindReservationByUserAndDate(ctx, "user-b", march10)
	require.NoError(t, err)
	assert.False(t, own.IsAutoGenerated)
	assert.Equal(t, "menu-0310-egg", own.MenuVariationID)

	assert.Equal(t, []string{
		events.ReservationCreated, // user-b, before the batch
		events.ReservationCreated, // user-a
		events.BatchCompleted,
	}, e.recorder.RoutingKeys())
}

func TestBatch_RetryFailed_OnlyRetriesFailedUsers(t *testing.T) {
	// GIVEN: A batch where user-b and user-c failed because the menu vanished
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))
	ctx := context.Background()
	e.processor.Menus = &withdrawingMenus{MenuRepository: e.store, served: 1}

	first, err := e.processor.CreateAutoReservationsForDate(ctx, march10)
	require.NoError(t, err)
	require.Equal(t, []string{"user-b", "user-c"}, first.FailedUserIDs())

	// WHEN: The menu is back and the failures are retried
	e.processor.Menus = e.store
	retry, err := e.processor.RetryFailedAutoReservations(ctx, first)

	// THEN: Only the two failed users are processed, both succeed
	require.NoError(t, err)
	assert.Equal(t, 2, retry.TotalUsers)
	assert.Equal(t, 2, retry.SuccessfulReservations)
	assert.Empty(t, retry.Errors)
	assert.False(t, retry.HasFailures())
}

func TestBatch_RetryFailed_UserNoLongerEligible(t *testing.T) {
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))
	ctx := context.Background()
	previous := &autoreservation.BatchResult{
		Date:   march10,
		Errors: []autoreservation.UserError{{UserID: "user-d"}, {UserID: "ghost"}},
	}

	retry, err := e.processor.RetryFailedAutoReservations(ctx, previous)

	require.NoError(t, err)
	assert.Equal(t, 2, retry.FailedReservations)
	assert.Equal(t, 400, retry.Errors[0].StatusCode)
	assert.Equal(t, 404, retry.Errors[1].StatusCode)

	_, err = e.processor.RetryFailedAutoReservations(ctx, nil)
	assert.True(t, reservation.IsBusinessRule(err))
}

func TestBatch_CancelledReservationIsRespected(t *testing.T) {
	// GIVEN: user-a booked and then cancelled the day
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))
	ctx := context.Background()
	r, err := e.service.Create(ctx, reservation.CreateRequest{
		UserID: "user-a", MenuID: "menu-0310", MenuVariationID: "menu-0310-std", ReservationDate: march10,
	})
	require.NoError(t, err)
	_, err = e.service.Cancel(ctx, r.ID)
	require.NoError(t, err)

	// WHEN: The batch runs
	result, err := e.processor.CreateAutoReservationsForDate(ctx, march10)

	// THEN: user-a is skipped, the other two are booked
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessfulReservations)
	assert.Equal(t, 1, result.SkippedReservations)
	assert.Equal(t, "reservation cancelled by user", result.Results[0].Reason)

	still, err := e.store.FindReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, still.Status)
}

func TestBatch_NoDefaultVariationFailsEachUser(t *testing.T) {
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))
	ctx := context.Background()
	menu := menuFor("menu-0310", march10)
	menu.Variations[1].IsDefault = false
	require.NoError(t, e.store.SaveMenu(ctx, menu))

	result, err := e.processor.CreateAutoReservationsForDate(ctx, march10)

	require.NoError(t, err)
	assert.Equal(t, 3, result.FailedReservations)
	assert.Contains(t, result.Errors[0].Message, "no default variation")
}

func TestBatch_ListingFailureAbortsBatch(t *testing.T) {
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))
	e.processor.Users = failingUsers{}

	result, err := e.processor.CreateAutoReservationsForDate(context.Background(), march10)

	assert.Nil(t, result)
	assert.True(t, reservation.IsOperational(err))
}

// =============================================================================
// DATE SELECTION
// =============================================================================

func TestBatch_DateRange(t *testing.T) {
	// GIVEN: A menu on the 10th but none on the 11th
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))
	ctx := context.Background()

	results, err := e.processor.CreateAutoReservationsForDateRange(ctx, march10, march10.AddDate(0, 0, 1))

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 3, results[0].SuccessfulReservations)
	assert.Equal(t, 3, results[1].FailedReservations)
	assert.Equal(t, "2025-03-11", reservation.FormatDate(results[1].Date))

	_, err = e.processor.CreateAutoReservationsForDateRange(ctx, march10, march10.AddDate(0, 0, -1))
	assert.True(t, reservation.IsBusinessRule(err))
}

func TestBatch_ProcessScheduled_TargetsNextBookableDate(t *testing.T) {
	// GIVEN: Sunday evening; the next business date is Monday the 10th
	e := newEnv(t, time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC))

	result, err := e.processor.ProcessScheduledAutoReservations(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", reservation.FormatDate(result.Date))
	assert.Equal(t, 3, result.SuccessfulReservations)
}

func TestNextBusinessDate(t *testing.T) {
	cutoff := reservation.DefaultCutoff()
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"monday before cutoff", time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC), "2025-03-10"},
		{"monday at cutoff", time.Date(2025, time.March, 10, 8, 30, 0, 0, time.UTC), "2025-03-11"},
		{"friday evening", time.Date(2025, time.March, 7, 20, 0, 0, 0, time.UTC), "2025-03-10"},
		{"saturday morning", time.Date(2025, time.March, 8, 6, 0, 0, 0, time.UTC), "2025-03-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reservation.FormatDate(autoreservation.NextBusinessDate(tt.now, cutoff)))
		})
	}
}
