package domain

import "time"

const yieldPeriodSeconds = int64(24 * time.Hour / time.Second)

// pointDuration is how long one durability point lasts at the item's decay rate.
func (e EquipmentItem) pointDuration() time.Duration {
	if e.DecayPerHour <= 0 {
		return 0
	}
	return time.Hour / time.Duration(e.DecayPerHour)
}

// ApplyDecay removes whole durability points for elapsed time. DecayedAt advances only by the time
// the removed points account for, so partial progress carries into the next call.
func ApplyDecay(item EquipmentItem, elapsed time.Duration) EquipmentItem {
	if elapsed <= 0 {
		return item
	}

	per := item.pointDuration()
	if per <= 0 || item.Broken() {
		item.DecayedAt = item.DecayedAt.Add(elapsed)
		return item
	}

	lost := int(elapsed / per)
	if lost >= item.CurrentDurability {
		item.CurrentDurability = 0
		item.DecayedAt = item.DecayedAt.Add(elapsed)
		return item
	}

	item.CurrentDurability -= lost
	item.DecayedAt = item.DecayedAt.Add(time.Duration(lost) * per)
	return item
}

// BreaksAt is the instant durability reaches zero, or the zero time for items that never decay.
func (e EquipmentItem) BreaksAt() time.Time {
	per := e.pointDuration()
	if per <= 0 {
		return time.Time{}
	}
	return e.DecayedAt.Add(time.Duration(e.CurrentDurability) * per)
}

// Accrue banks the yield earned since YieldedAt into PendingYield and then decays the item to now.
// Yield only accrues while durability is above zero. Whole units go to PendingYield; the remainder
// is kept in YieldCarry so frequent accrual earns the same as one long accrual.
func Accrue(item EquipmentItem, now time.Time) EquipmentItem {
	if !now.After(item.YieldedAt) {
		return item
	}

	yieldedAt := now
	if !item.Broken() && item.DailyBonus > 0 {
		end := now
		if breaks := item.BreaksAt(); !breaks.IsZero() && breaks.Before(end) {
			end = breaks
		}
		secs := int64(end.Sub(item.YieldedAt) / time.Second)
		if secs > 0 {
			earned := item.YieldCarry + item.DailyBonus*secs
			item.PendingYield += earned / yieldPeriodSeconds
			item.YieldCarry = earned % yieldPeriodSeconds
		}
		// sub-second progress carries unless the item broke inside the window
		if end.Equal(now) {
			yieldedAt = item.YieldedAt.Add(time.Duration(max(secs, 0)) * time.Second)
		}
	}

	item = ApplyDecay(item, now.Sub(item.DecayedAt))
	item.YieldedAt = yieldedAt
	return item
}

// Repaired restores durability by value, capped at MaxDurability. Decay restarts from now.
func Repaired(item EquipmentItem, value int, now time.Time) EquipmentItem {
	item = Accrue(item, now)
	item.CurrentDurability += value
	if item.CurrentDurability > item.MaxDurability {
		item.CurrentDurability = item.MaxDurability
	}
	item.DecayedAt = now
	return item
}
