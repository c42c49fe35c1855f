package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/models"
)

func newTestReservationService(t *testing.T) (*ReservationService, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := setupTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewReservationService(db, NewLedger(db), notifier, time.UTC)
	svc.now = fixedClock("2030-05-20")
	return svc, db, notifier
}

func validInput(slot *models.TimeSlot) ReservationInput {
	return ReservationInput{
		Name:       "Ada Lovelace",
		Email:      "ada@example.com",
		Phone:      "07700900123",
		Date:       testDate,
		TimeSlotID: slot.ID,
		Guests:     2,
	}
}

func TestCreateReservation(t *testing.T) {
	svc, db, notifier := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 10)
	user := seedUser(t, db, "ada@example.com")

	in := validInput(slot)
	in.SpecialRequests = "  window seat "
	r, err := svc.Create(context.Background(), Actor{UserID: &user.ID}, in)
	require.NoError(t, err)

	assert.NotZero(t, r.ID)
	assert.Equal(t, user.ID, *r.UserID)
	assert.False(t, r.Cancelled)
	require.NotNil(t, r.SpecialRequests)
	assert.Equal(t, "window seat", *r.SpecialRequests)
	assert.Equal(t, []string{"2030-06-01/1=8"}, notifier.updates)
}

func TestCreateValidation(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 10)

	tests := []struct {
		name   string
		mutate func(*ReservationInput)
		field  string
	}{
		{"past date", func(in *ReservationInput) { in.Date = "2030-05-19" }, "date"},
		{"bad date", func(in *ReservationInput) { in.Date = "01/06/2030" }, "date"},
		{"zero guests", func(in *ReservationInput) { in.Guests = 0 }, "guests"},
		{"too many guests", func(in *ReservationInput) { in.Guests = 21 }, "guests"},
		{"bad email", func(in *ReservationInput) { in.Email = "not-an-email" }, "email"},
		{"missing name", func(in *ReservationInput) { in.Name = "  " }, "name"},
		{"long phone", func(in *ReservationInput) { in.Phone = "012345678901234567890" }, "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(slot)
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), Actor{}, in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	var count int64
	db.Model(&models.Reservation{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreateAllowsToday(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 10)

	in := validInput(slot)
	in.Date = "2030-05-20"
	_, err := svc.Create(context.Background(), Actor{}, in)
	assert.NoError(t, err)
}

func TestCreateUsesConfiguredTimezone(t *testing.T) {
	db := setupTestDB(t)
	slot := seedSlot(t, db, "18:00:00", 10)

	// 23:00 UTC on the 19th is already the 20th in Auckland.
	loc := time.FixedZone("NZST", 12*60*60)
	svc := NewReservationService(db, NewLedger(db), nil, loc)
	svc.now = func() time.Time { return time.Date(2030, 5, 19, 23, 0, 0, 0, time.UTC) }

	in := validInput(slot)
	in.Date = "2030-05-19"
	_, err := svc.Create(context.Background(), Actor{}, in)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateInactiveSlot(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 10)
	require.NoError(t, db.Model(slot).Update("is_active", false).Error)

	_, err := svc.Create(context.Background(), Actor{}, validInput(slot))
	assert.ErrorIs(t, err, ErrSlotInactive)
}

func TestCreateUnknownSlot(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 10)

	in := validInput(slot)
	in.TimeSlotID = 77
	_, err := svc.Create(context.Background(), Actor{}, in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "time_slot_id")
}

func TestCreateCapacityExceeded(t *testing.T) {
	svc, db, notifier := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 50)
	seedReservation(t, db, slot, testDate, 48)

	in := validInput(slot)
	in.Guests = 3
	_, err := svc.Create(context.Background(), Actor{}, in)

	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Remaining)
	assert.Equal(t, "No seats remaining for this time slot (only 2 spots left)", capErr.Error())
	assert.Empty(t, notifier.updates)
}

func TestCreateConcurrentLastSeats(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		refusals int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := validInput(slot)
			in.Guests = 6
			_, err := svc.Create(context.Background(), Actor{}, in)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			var capErr *CapacityExceededError
			if assert.ErrorAs(t, err, &capErr) {
				assert.Equal(t, 4, capErr.Remaining)
				refusals++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, refusals)
	assert.Equal(t, 6, countGuests(t, db, slot, testDate))
}

func TestUpdateOwnershipAndCapacity(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	ctx := context.Background()
	slot := seedSlot(t, db, "18:00:00", 5)
	owner := seedUser(t, db, "owner@example.com")
	other := seedUser(t, db, "other@example.com")

	in := validInput(slot)
	in.Guests = 4
	r, err := svc.Create(ctx, Actor{UserID: &owner.ID}, in)
	require.NoError(t, err)

	_, err = svc.Update(ctx, Actor{UserID: &other.ID}, r.ID, in)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Update(ctx, Actor{}, r.ID, in)
	assert.ErrorIs(t, err, ErrNotFound)

	// Own seats are not counted against the edit.
	in.Guests = 5
	updated, err := svc.Update(ctx, Actor{UserID: &owner.ID}, r.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Guests)

	in.Guests = 6
	_, err = svc.Update(ctx, Actor{UserID: &owner.ID}, r.ID, in)
	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 5, capErr.Remaining)

	stored, err := svc.Get(ctx, Actor{UserID: &owner.ID}, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Guests)
}

func TestUpdateMovesToAnotherSlot(t *testing.T) {
	svc, db, notifier := newTestReservationService(t)
	ctx := context.Background()
	early := seedSlot(t, db, "18:00:00", 10)
	late := seedSlot(t, db, "20:00:00", 3)
	user := seedUser(t, db, "mover@example.com")
	actor := Actor{UserID: &user.ID}

	in := validInput(early)
	in.Guests = 3
	r, err := svc.Create(ctx, actor, in)
	require.NoError(t, err)
	createdAt := r.CreatedAt

	in.TimeSlotID = late.ID
	updated, err := svc.Update(ctx, actor, r.ID, in)
	require.NoError(t, err)
	assert.Equal(t, late.ID, updated.TimeSlotID)
	assert.WithinDuration(t, createdAt, updated.CreatedAt, time.Second)

	assert.Equal(t, 0, countGuests(t, db, early, testDate))
	assert.Equal(t, 3, countGuests(t, db, late, testDate))
	assert.Contains(t, notifier.updates, "2030-06-01/1=10")
	assert.Contains(t, notifier.updates, "2030-06-01/2=0")
}

func TestUpdateContactOnlySkipsCapacityCheck(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	ctx := context.Background()
	slot := seedSlot(t, db, "18:00:00", 4)
	user := seedUser(t, db, "contact@example.com")
	actor := Actor{UserID: &user.ID}

	in := validInput(slot)
	in.Guests = 4
	r, err := svc.Create(ctx, actor, in)
	require.NoError(t, err)

	// Staff cut the slot below what is already booked.
	require.NoError(t, db.Model(slot).Update("max_capacity", 2).Error)

	in.Phone = "07700900999"
	updated, err := svc.Update(ctx, actor, r.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "07700900999", updated.Phone)

	in.Guests = 3
	updated, err = svc.Update(ctx, actor, r.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Guests)
}

func TestUpdateRechecksWhenSeatsMovedUnderneath(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	ctx := context.Background()
	full := seedSlot(t, db, "18:00:00", 10)
	other := seedSlot(t, db, "20:00:00", 10)
	user := seedUser(t, db, "racer@example.com")
	actor := Actor{UserID: &user.ID}

	in := validInput(full)
	in.Guests = 5
	r, err := svc.Create(ctx, actor, in)
	require.NoError(t, err)

	// Once the edit has read the row, a concurrent edit moves it to the
	// other slot and the freed seats are booked by someone else.
	moved := false
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:move_after_read", func(tx *gorm.DB) {
		if moved || tx.Statement.Table != "reservations" {
			return
		}
		moved = true
		require.NoError(t, db.Exec("UPDATE reservations SET time_slot_id = ? WHERE id = ?", other.ID, r.ID).Error)
		seedReservation(t, db, full, testDate, 10)
	}))

	in.Phone = "07700900999"
	_, err = svc.Update(ctx, actor, r.ID, in)
	require.True(t, moved)
	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 0, capErr.Remaining)

	assert.Equal(t, 10, countGuests(t, db, full, testDate))
	assert.Equal(t, 5, countGuests(t, db, other, testDate))
}

func TestCancelIsIdempotentlyRejected(t *testing.T) {
	svc, db, notifier := newTestReservationService(t)
	ctx := context.Background()
	slot := seedSlot(t, db, "18:00:00", 10)
	user := seedUser(t, db, "cancel@example.com")
	actor := Actor{UserID: &user.ID}

	r, err := svc.Create(ctx, actor, validInput(slot))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, actor, r.ID)
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	assert.Equal(t, "2030-06-01/1=10", notifier.updates[len(notifier.updates)-1])

	_, err = svc.Cancel(ctx, actor, r.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = svc.Update(ctx, actor, r.ID, validInput(slot))
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelFreesCapacity(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	ctx := context.Background()
	slot := seedSlot(t, db, "18:00:00", 50)
	seedReservation(t, db, slot, testDate, 45)
	user := seedUser(t, db, "full@example.com")
	actor := Actor{UserID: &user.ID}

	in := validInput(slot)
	in.Guests = 5
	r, err := svc.Create(ctx, actor, in)
	require.NoError(t, err)

	in.Guests = 1
	_, err = svc.Create(ctx, Actor{}, in)
	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)

	_, err = svc.Cancel(ctx, actor, r.ID)
	require.NoError(t, err)

	in.Guests = 5
	_, err = svc.Create(ctx, Actor{}, in)
	assert.NoError(t, err)
}

func TestConcurrentCancelSucceedsOnce(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	slot := seedSlot(t, db, "18:00:00", 10)
	user := seedUser(t, db, "race@example.com")
	actor := Actor{UserID: &user.ID}

	r, err := svc.Create(context.Background(), actor, validInput(slot))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		already   int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Cancel(context.Background(), actor, r.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, ErrAlreadyCancelled) {
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, already)
}

func TestAnonymousReservationNeedsToken(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	ctx := context.Background()
	slot := seedSlot(t, db, "18:00:00", 10)
	stranger := seedUser(t, db, "stranger@example.com")

	r, err := svc.Create(ctx, Actor{}, validInput(slot))
	require.NoError(t, err)
	assert.Nil(t, r.UserID)

	_, err = svc.Get(ctx, Actor{}, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Cancel(ctx, Actor{UserID: &stranger.ID}, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	holder := Actor{ReservationID: &r.ID}
	got, err := svc.Get(ctx, holder, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	mine, err := svc.ListMine(ctx, holder)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = svc.Cancel(ctx, holder, r.ID)
	assert.NoError(t, err)
}

func TestListMineOrdering(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	ctx := context.Background()
	late := seedSlot(t, db, "20:00:00", 10)
	early := seedSlot(t, db, "18:00:00", 10)
	user := seedUser(t, db, "list@example.com")
	actor := Actor{UserID: &user.ID}

	mk := func(slot *models.TimeSlot, date string) *models.Reservation {
		in := validInput(slot)
		in.Date = date
		r, err := svc.Create(ctx, actor, in)
		require.NoError(t, err)
		return r
	}
	third := mk(late, "2030-06-02")
	second := mk(late, "2030-06-01")
	first := mk(early, "2030-06-01")
	gone := mk(early, "2030-06-03")
	_, err := svc.Cancel(ctx, actor, gone.ID)
	require.NoError(t, err)

	// Someone else's booking.
	_, err = svc.Create(ctx, Actor{}, validInput(early))
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, actor)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, []uint{first.ID, second.ID, third.ID}, []uint{mine[0].ID, mine[1].ID, mine[2].ID})
	require.NotNil(t, mine[0].TimeSlot)
	assert.Equal(t, "18:00:00", mine[0].TimeSlot.StartTime)

	empty, err := svc.ListMine(ctx, Actor{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListAllFilters(t *testing.T) {
	svc, db, _ := newTestReservationService(t)
	ctx := context.Background()
	slot := seedSlot(t, db, "18:00:00", 20)

	in := validInput(slot)
	_, err := svc.Create(ctx, Actor{}, in)
	require.NoError(t, err)

	in.Name = "Grace Hopper"
	in.Email = "grace@example.com"
	in.Date = "2030-06-02"
	r, err := svc.Create(ctx, Actor{ReservationID: nil}, in)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, Actor{ReservationID: &r.ID}, r.ID)
	require.NoError(t, err)

	all, err := svc.ListAll(ctx, ReservationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byDate, err := svc.ListAll(ctx, ReservationFilter{Date: "2030-06-02"})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "Grace Hopper", byDate[0].Name)

	active := false
	open, err := svc.ListAll(ctx, ReservationFilter{Cancelled: &active})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Ada Lovelace", open[0].Name)

	search, err := svc.ListAll(ctx, ReservationFilter{Search: "GRACE"})
	require.NoError(t, err)
	assert.Len(t, search, 1)
}
