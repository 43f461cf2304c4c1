package discount

import "time"

// ResolveStatus derives a discount's lifecycle status from its date window.
// A manual Disabled override is sticky and is never auto-corrected. Date
// bounds are inclusive: a discount is live from StartDate through EndDate.
// The caller supplies now (UTC wall clock) and decides whether to persist
// the result.
func ResolveStatus(d *Discount, now time.Time) Status {
	if d.Status == StatusDisabled {
		return StatusDisabled
	}
	if d.EndDate != nil && now.After(*d.EndDate) {
		return StatusExpired
	}
	if d.StartDate != nil && now.Before(*d.StartDate) {
		return StatusUpcoming
	}
	return StatusActive
}
