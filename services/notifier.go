package services

// Notifier receives booking side effects. hub.Hub implements it.
type Notifier interface {
	AvailabilityChanged(date string, timeSlotID uint, remaining int)
	StaffNotice(event string, data interface{})
}

type nopNotifier struct{}

func (nopNotifier) AvailabilityChanged(string, uint, int) {}
func (nopNotifier) StaffNotice(string, interface{})       {}
