package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

const EventCapacityAlert = "capacity_alert"

// Overbooking is a (date, slot) pair holding more guests than the slot
// now allows, which happens when staff lower max_capacity after booking.
type Overbooking struct {
	Date        string `json:"date"`
	TimeSlotID  uint   `json:"time_slot_id"`
	DisplayName string `json:"display_name"`
	Booked      int    `json:"booked"`
	MaxCapacity int    `json:"max_capacity"`
}

// CapacityAudit periodically scans the coming days for overbookings and
// reports them to staff.
type CapacityAudit struct {
	db        *gorm.DB
	notifier  Notifier
	loc       *time.Location
	daysAhead int
	now       func() time.Time
	cron      *cron.Cron
}

func NewCapacityAudit(db *gorm.DB, notifier Notifier, loc *time.Location, daysAhead int) *CapacityAudit {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CapacityAudit{
		db:        db,
		notifier:  notifier,
		loc:       loc,
		daysAhead: daysAhead,
		now:       time.Now,
	}
}

// Start schedules Run with a cron spec such as "@every 15m".
func (a *CapacityAudit) Start(schedule string) error {
	a.cron = cron.New(cron.WithLocation(a.loc))
	if _, err := a.cron.AddFunc(schedule, func() {
		if _, err := a.Run(context.Background()); err != nil {
			utils.Error(logrus.Fields{"job": "capacity_audit"}).WithError(err).Error("Capacity audit failed")
		}
	}); err != nil {
		return err
	}
	a.cron.Start()
	utils.Info(logrus.Fields{"schedule": schedule, "days_ahead": a.daysAhead}).Info("Capacity audit scheduled")
	return nil
}

// Stop waits for a running audit to finish.
func (a *CapacityAudit) Stop() {
	if a.cron == nil {
		return
	}
	<-a.cron.Stop().Done()
}

func (a *CapacityAudit) Run(ctx context.Context) ([]Overbooking, error) {
	n := a.now().In(a.loc)
	from := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, a.loc)
	to := from.AddDate(0, 0, a.daysAhead)

	var found []Overbooking
	err := a.db.WithContext(ctx).Model(&models.Reservation{}).
		Select("reservations.date AS date, reservations.time_slot_id AS time_slot_id, " +
			"time_slots.display_name AS display_name, SUM(reservations.guests) AS booked, " +
			"time_slots.max_capacity AS max_capacity").
		Joins("JOIN time_slots ON time_slots.id = reservations.time_slot_id").
		Where("reservations.cancelled = ? AND reservations.date >= ? AND reservations.date <= ?",
			false, from.Format(models.DateLayout), to.Format(models.DateLayout)).
		Group("reservations.date, reservations.time_slot_id, time_slots.display_name, time_slots.max_capacity").
		Having("SUM(reservations.guests) > time_slots.max_capacity").
		Order("reservations.date ASC").
		Order("reservations.time_slot_id ASC").
		Scan(&found).Error
	if err != nil {
		return nil, storageErr("audit capacity", err)
	}

	for _, o := range found {
		utils.Info(logrus.Fields{
			"date":         o.Date,
			"slot_id":      o.TimeSlotID,
			"booked":       o.Booked,
			"max_capacity": o.MaxCapacity,
		}).Warn("Time slot is overbooked")
		a.notifier.StaffNotice(EventCapacityAlert, o)
	}
	return found, nil
}
