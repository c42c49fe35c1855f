package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

const (
	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205
)

// errRejected rolls back a transaction whose capacity check failed.
var errRejected = errors.New("capacity check rejected")

// Capacity is the seat count left for one (date, time slot) pair.
type Capacity struct {
	Remaining   int  `json:"remaining"`
	IsAvailable bool `json:"available"`
}

func capacityOf(maxCapacity, booked int) Capacity {
	remaining := maxCapacity - booked
	if remaining < 0 {
		remaining = 0
	}
	return Capacity{Remaining: remaining, IsAvailable: remaining > 0}
}

type ReserveRequest struct {
	Date       string
	TimeSlotID uint
	Guests     int
	// ExcludeID leaves one reservation's guests out of the running total,
	// used when an edit is checked against its own previous booking.
	ExcludeID *uint
}

// Decision is the outcome of Reserve. Remaining is the seat count left
// after admission, or the count that was too small on rejection.
type Decision struct {
	Accepted  bool
	Remaining int
}

// Ledger computes and enforces per (date, time slot) capacity.
type Ledger struct {
	db         *gorm.DB
	locks      *keyedMutex
	maxRetries int
	retryDelay time.Duration
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		db:         db,
		locks:      newKeyedMutex(),
		maxRetries: 3,
		retryDelay: 25 * time.Millisecond,
	}
}

// RemainingCapacity reads the seats left without locking anything.
func (l *Ledger) RemainingCapacity(ctx context.Context, date string, timeSlotID uint, excludeID *uint) (Capacity, error) {
	db := l.db.WithContext(ctx)

	slot, err := findSlot(db, timeSlotID)
	if err != nil {
		return Capacity{}, err
	}

	booked, err := bookedGuests(db, date, timeSlotID, excludeID)
	if err != nil {
		return Capacity{}, err
	}
	return capacityOf(slot.MaxCapacity, booked), nil
}

// Reserve admits req.Guests to (req.Date, req.TimeSlotID) if they fit and
// runs persist inside the same transaction. The sum is taken after the
// pair's guard row is locked, so two callers on one pair always see each
// other's writes. A rejection is a Decision, not an error; errors are
// storage faults or whatever persist returned, and leave nothing written.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest, persist func(tx *gorm.DB) error) (Decision, error) {
	if req.Guests < models.MinGuests {
		return Decision{}, newValidationError("guests", fmt.Sprintf("must be at least %d", models.MinGuests))
	}

	unlock := l.locks.Lock(lockKey(req.Date, req.TimeSlotID))
	defer unlock()

	for attempt := 0; ; attempt++ {
		decision, err := l.reserveOnce(ctx, req, persist)
		if err == nil || !isLockConflict(err) || attempt >= l.maxRetries {
			return decision, err
		}

		utils.Info(logrus.Fields{
			"date":    req.Date,
			"slot_id": req.TimeSlotID,
			"attempt": attempt + 1,
		}).Warn("Lock conflict while reserving, retrying")

		select {
		case <-ctx.Done():
			return Decision{}, storageErr("reserve", ctx.Err())
		case <-time.After(l.retryDelay * time.Duration(attempt+1)):
		}
	}
}

func (l *Ledger) reserveOnce(ctx context.Context, req ReserveRequest, persist func(tx *gorm.DB) error) (Decision, error) {
	var (
		decision Decision
		// passthrough is returned to the caller as is instead of as a storage fault.
		passthrough error
	)

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockSlotDay(tx, req.Date, req.TimeSlotID); err != nil {
			return err
		}

		slot, err := findSlot(tx, req.TimeSlotID)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				passthrough = err
			}
			return err
		}

		booked, err := bookedGuests(tx, req.Date, req.TimeSlotID, req.ExcludeID)
		if err != nil {
			return err
		}

		capacity := capacityOf(slot.MaxCapacity, booked)
		if req.Guests > capacity.Remaining {
			decision = Decision{Accepted: false, Remaining: capacity.Remaining}
			return errRejected
		}

		if err := persist(tx); err != nil {
			passthrough = err
			return err
		}

		decision = Decision{Accepted: true, Remaining: capacity.Remaining - req.Guests}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errRejected):
		return decision, nil
	case passthrough != nil && errors.Is(err, passthrough):
		return Decision{}, passthrough
	default:
		return Decision{}, storageErr("reserve", err)
	}
}

// lockSlotDay makes sure the guard row exists and takes a write lock on it.
func lockSlotDay(tx *gorm.DB, date string, timeSlotID uint) error {
	guard := models.SlotLock{TimeSlotID: timeSlotID, Date: date}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&guard).Error; err != nil {
		return storageErr("create slot lock", err)
	}

	err := tx.Model(&models.SlotLock{}).
		Where("time_slot_id = ? AND date = ?", timeSlotID, date).
		UpdateColumn("version", gorm.Expr("version + ?", 1)).Error
	if err != nil {
		return storageErr("lock slot", err)
	}
	return nil
}

func findSlot(db *gorm.DB, timeSlotID uint) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	if err := db.First(&slot, timeSlotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, storageErr("load time slot", err)
	}
	return &slot, nil
}

func bookedGuests(db *gorm.DB, date string, timeSlotID uint, excludeID *uint) (int, error) {
	q := db.Model(&models.Reservation{}).
		Where("date = ? AND time_slot_id = ? AND cancelled = ?", date, timeSlotID, false)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	var total int64
	if err := q.Select("COALESCE(SUM(guests), 0)").Row().Scan(&total); err != nil {
		return 0, storageErr("sum guests", err)
	}
	return int(total), nil
}

// bookedGuestsByDate sums non-cancelled guests per slot for one date.
func bookedGuestsByDate(db *gorm.DB, date string) (map[uint]int, error) {
	var rows []struct {
		TimeSlotID uint
		Booked     int64
	}
	err := db.Model(&models.Reservation{}).
		Select("time_slot_id, COALESCE(SUM(guests), 0) AS booked").
		Where("date = ? AND cancelled = ?", date, false).
		Group("time_slot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("sum guests by slot", err)
	}

	booked := make(map[uint]int, len(rows))
	for _, r := range rows {
		booked[r.TimeSlotID] = int(r.Booked)
	}
	return booked, nil
}

func lockKey(date string, timeSlotID uint) string {
	return fmt.Sprintf("%s/%d", date, timeSlotID)
}

func isLockConflict(err error) bool {
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}
