package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

// errSeatsMoved sends an edit back through the ledger after the row changed under it.
var errSeatsMoved = errors.New("reservation seats changed concurrently")

// Actor is who is acting on a reservation. UserID is set for signed-in
// users; ReservationID is set when an anonymous guest presents the
// reservation token issued at creation.
type Actor struct {
	UserID        *uint
	ReservationID *uint
	RequestID     string
}

// Owns reports whether the actor may read or change r.
func (a Actor) Owns(r *models.Reservation) bool {
	if r.UserID != nil {
		return a.UserID != nil && *a.UserID == *r.UserID
	}
	return a.ReservationID != nil && *a.ReservationID == r.ID
}

func (a Actor) fields() logrus.Fields {
	f := logrus.Fields{"request_id": a.RequestID}
	if a.UserID != nil {
		f["user_id"] = *a.UserID
	}
	return f
}

type ReservationInput struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Phone           string `json:"phone" validate:"required,max=20"`
	Date            string `json:"date" validate:"required"`
	TimeSlotID      uint   `json:"time_slot_id" validate:"required"`
	Guests          int    `json:"guests" validate:"min=1,max=20"`
	SpecialRequests string `json:"special_requests" validate:"max=1000"`
}

type ReservationFilter struct {
	Date       string
	TimeSlotID uint
	Cancelled  *bool
	// Search matches name or email, case-insensitively on both drivers.
	Search string
}

type ReservationService struct {
	db       *gorm.DB
	ledger   *Ledger
	notifier Notifier
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

func NewReservationService(db *gorm.DB, ledger *Ledger, notifier Notifier, loc *time.Location) *ReservationService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ReservationService{
		db:       db,
		ledger:   ledger,
		notifier: notifier,
		validate: newValidator(),
		loc:      loc,
		now:      time.Now,
	}
}

// Create validates in, checks the slot is bookable and admits the party
// through the ledger. Validation problems never touch storage.
func (s *ReservationService) Create(ctx context.Context, actor Actor, in ReservationInput) (*models.Reservation, error) {
	in, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	slot, err := s.activeSlot(ctx, in.TimeSlotID)
	if err != nil {
		return nil, err
	}

	reservation := &models.Reservation{
		UserID:          actor.UserID,
		TimeSlotID:      in.TimeSlotID,
		Date:            in.Date,
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Guests:          in.Guests,
		SpecialRequests: specialRequests(in),
	}

	decision, err := s.ledger.Reserve(ctx, ReserveRequest{
		Date:       in.Date,
		TimeSlotID: in.TimeSlotID,
		Guests:     in.Guests,
	}, func(tx *gorm.DB) error {
		if err := tx.Create(reservation).Error; err != nil {
			return storageErr("create reservation", err)
		}
		return nil
	})
	if err != nil {
		utils.Error(actor.fields()).WithError(err).Error("Failed to create reservation")
		return nil, err
	}
	if !decision.Accepted {
		utils.Info(actor.fields()).WithFields(logrus.Fields{
			"date":      in.Date,
			"slot_id":   in.TimeSlotID,
			"guests":    in.Guests,
			"remaining": decision.Remaining,
		}).Info("Reservation refused, slot full")
		return nil, &CapacityExceededError{Remaining: decision.Remaining}
	}

	reservation.TimeSlot = slot
	utils.Info(actor.fields()).WithFields(logrus.Fields{
		"reservation_id": reservation.ID,
		"date":           reservation.Date,
		"slot_id":        reservation.TimeSlotID,
		"guests":         reservation.Guests,
	}).Info("Reservation created")

	s.notifier.AvailabilityChanged(in.Date, in.TimeSlotID, decision.Remaining)
	return reservation, nil
}

// Update replaces the editable fields of a reservation. Moving it or
// adding guests goes back through the ledger with the reservation's own
// seats left out of the count.
func (s *ReservationService) Update(ctx context.Context, actor Actor, id uint, in ReservationInput) (*models.Reservation, error) {
	in, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if existing.Cancelled {
		return nil, ErrAlreadyCancelled
	}

	moved := in.Date != existing.Date || in.TimeSlotID != existing.TimeSlotID
	if moved {
		if _, err := s.activeSlot(ctx, in.TimeSlotID); err != nil {
			return nil, err
		}
	}

	changes := map[string]interface{}{
		"name":             in.Name,
		"email":            in.Email,
		"phone":            in.Phone,
		"date":             in.Date,
		"time_slot_id":     in.TimeSlotID,
		"guests":           in.Guests,
		"special_requests": specialRequests(in),
	}
	if unchanged(existing, changes) {
		return existing, nil
	}

	// save writes the changes. With guarded set it only matches while the
	// row still holds the seats the edit was judged against.
	save := func(guarded bool) func(tx *gorm.DB) error {
		return func(tx *gorm.DB) error {
			q := tx.Model(&models.Reservation{}).Where("id = ? AND cancelled = ?", id, false)
			if guarded {
				q = q.Where("date = ? AND time_slot_id = ? AND guests >= ?",
					existing.Date, existing.TimeSlotID, in.Guests)
			}
			res := q.Updates(changes)
			if res.Error != nil {
				return storageErr("update reservation", res.Error)
			}
			if res.RowsAffected > 0 {
				return nil
			}

			// MySQL reports zero rows when nothing changed, so look again.
			var current models.Reservation
			if err := tx.First(&current, id).Error; err != nil {
				return storageErr("reload reservation", err)
			}
			if current.Cancelled {
				return ErrAlreadyCancelled
			}
			if guarded && (current.Date != existing.Date ||
				current.TimeSlotID != existing.TimeSlotID || current.Guests < in.Guests) {
				return errSeatsMoved
			}
			return nil
		}
	}

	viaLedger := moved || in.Guests > existing.Guests
	if !viaLedger {
		err := s.db.WithContext(ctx).Transaction(save(true))
		switch {
		case errors.Is(err, errSeatsMoved):
			viaLedger = true
		case err != nil:
			return nil, err
		}
	}

	if viaLedger {
		decision, err := s.ledger.Reserve(ctx, ReserveRequest{
			Date:       in.Date,
			TimeSlotID: in.TimeSlotID,
			Guests:     in.Guests,
			ExcludeID:  &id,
		}, save(false))
		if err != nil {
			return nil, err
		}
		if !decision.Accepted {
			return nil, &CapacityExceededError{Remaining: decision.Remaining}
		}
	}

	updated, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	utils.Info(actor.fields()).WithFields(logrus.Fields{
		"reservation_id": id,
		"date":           updated.Date,
		"slot_id":        updated.TimeSlotID,
		"guests":         updated.Guests,
	}).Info("Reservation updated")

	s.publish(ctx, actor, existing.Date, existing.TimeSlotID)
	if updated.Date != existing.Date || updated.TimeSlotID != existing.TimeSlotID {
		s.publish(ctx, actor, updated.Date, updated.TimeSlotID)
	}
	return updated, nil
}

// Cancel marks the reservation cancelled. Of two concurrent cancels
// exactly one succeeds; the other gets ErrAlreadyCancelled.
func (s *ReservationService) Cancel(ctx context.Context, actor Actor, id uint) (*models.Reservation, error) {
	existing, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND cancelled = ?", id, false).
		Update("cancelled", true)
	if res.Error != nil {
		return nil, storageErr("cancel reservation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyCancelled
	}

	existing.Cancelled = true
	utils.Info(actor.fields()).WithField("reservation_id", id).Info("Reservation cancelled")

	s.publish(ctx, actor, existing.Date, existing.TimeSlotID)
	return existing, nil
}

func (s *ReservationService) Get(ctx context.Context, actor Actor, id uint) (*models.Reservation, error) {
	return s.loadOwned(ctx, actor, id)
}

// ListMine returns the actor's active reservations by date then start time.
func (s *ReservationService) ListMine(ctx context.Context, actor Actor) ([]models.Reservation, error) {
	q := s.listQuery(ctx).Where("reservations.cancelled = ?", false)

	switch {
	case actor.UserID != nil:
		q = q.Where("reservations.user_id = ?", *actor.UserID)
	case actor.ReservationID != nil:
		q = q.Where("reservations.id = ? AND reservations.user_id IS NULL", *actor.ReservationID)
	default:
		return []models.Reservation{}, nil
	}

	reservations := []models.Reservation{}
	if err := q.Find(&reservations).Error; err != nil {
		return nil, storageErr("list reservations", err)
	}
	return reservations, nil
}

// ListAll is the staff view over every reservation.
func (s *ReservationService) ListAll(ctx context.Context, filter ReservationFilter) ([]models.Reservation, error) {
	q := s.listQuery(ctx)
	if filter.Date != "" {
		q = q.Where("reservations.date = ?", filter.Date)
	}
	if filter.TimeSlotID != 0 {
		q = q.Where("reservations.time_slot_id = ?", filter.TimeSlotID)
	}
	if filter.Cancelled != nil {
		q = q.Where("reservations.cancelled = ?", *filter.Cancelled)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(reservations.name) LIKE ? OR LOWER(reservations.email) LIKE ?", like, like)
	}

	reservations := []models.Reservation{}
	if err := q.Find(&reservations).Error; err != nil {
		return nil, storageErr("list reservations", err)
	}
	return reservations, nil
}

func (s *ReservationService) listQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Preload("TimeSlot").
		Joins("JOIN time_slots ON time_slots.id = reservations.time_slot_id").
		Order("reservations.date ASC").
		Order("time_slots.start_time ASC").
		Order("reservations.id ASC")
}

// prepare trims in and returns it only if every field is acceptable.
func (s *ReservationService) prepare(in ReservationInput) (ReservationInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Date = strings.TrimSpace(in.Date)
	in.SpecialRequests = strings.TrimSpace(in.SpecialRequests)

	verr := validateStruct(s.validate, in)
	if verr == nil {
		verr = &ValidationError{}
	}

	if in.Date != "" {
		day, err := time.ParseInLocation(models.DateLayout, in.Date, s.loc)
		switch {
		case err != nil:
			verr.add("date", "must be a date in YYYY-MM-DD form")
		case day.Before(s.today()):
			verr.add("date", "Reservations cannot be made for past dates.")
		default:
			in.Date = day.Format(models.DateLayout)
		}
	}

	if len(verr.Fields) > 0 {
		return in, verr
	}
	return in, nil
}

func (s *ReservationService) today() time.Time {
	n := s.now().In(s.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
}

func (s *ReservationService) activeSlot(ctx context.Context, id uint) (*models.TimeSlot, error) {
	slot, err := findSlot(s.db.WithContext(ctx), id)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, newValidationError("time_slot_id", ErrSlotNotFound.Error())
	}
	if err != nil {
		return nil, err
	}
	if !slot.IsActive {
		return nil, ErrSlotInactive
	}
	return slot, nil
}

func (s *ReservationService) find(ctx context.Context, id uint) (*models.Reservation, error) {
	var r models.Reservation
	if err := s.db.WithContext(ctx).Preload("TimeSlot").First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("load reservation", err)
	}
	return &r, nil
}

// loadOwned hides reservations the actor does not own behind ErrNotFound.
func (s *ReservationService) loadOwned(ctx context.Context, actor Actor, id uint) (*models.Reservation, error) {
	r, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(r) {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *ReservationService) publish(ctx context.Context, actor Actor, date string, timeSlotID uint) {
	capacity, err := s.ledger.RemainingCapacity(ctx, date, timeSlotID, nil)
	if err != nil {
		utils.Error(actor.fields()).WithError(err).Error("Failed to compute availability update")
		return
	}
	s.notifier.AvailabilityChanged(date, timeSlotID, capacity.Remaining)
}

func specialRequests(in ReservationInput) *string {
	if in.SpecialRequests == "" {
		return nil
	}
	v := in.SpecialRequests
	return &v
}

func unchanged(r *models.Reservation, changes map[string]interface{}) bool {
	var special string
	if r.SpecialRequests != nil {
		special = *r.SpecialRequests
	}
	var wantSpecial string
	if p, _ := changes["special_requests"].(*string); p != nil {
		wantSpecial = *p
	}
	return r.Name == changes["name"] &&
		r.Email == changes["email"] &&
		r.Phone == changes["phone"] &&
		r.Date == changes["date"] &&
		r.TimeSlotID == changes["time_slot_id"] &&
		r.Guests == changes["guests"] &&
		special == wantSpecial
}
