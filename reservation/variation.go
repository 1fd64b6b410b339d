package reservation

import "time"

// ResolveVariation returns the variation of menu with the given id. The
// variation must be listed on the menu and point back to it.
func ResolveVariation(menu *Menu, variationID string) (*MenuVariation, error) {
	if menu == nil {
		return nil, NotFound("menu not found")
	}
	for i := range menu.Variations {
		v := &menu.Variations[i]
		if v.ID != variationID {
			continue
		}
		if v.MenuID != menu.ID {
			return nil, NotFound("variation %s does not belong to menu %s", variationID, menu.ID)
		}
		return v, nil
	}
	return nil, NotFound("variation %s not found for menu %s", variationID, menu.ID)
}

// DefaultVariation returns the variation flagged as default, used for users
// who did not pick one.
func DefaultVariation(menu *Menu) (*MenuVariation, error) {
	if menu == nil {
		return nil, NotFound("menu not found")
	}
	for i := range menu.Variations {
		v := &menu.Variations[i]
		if v.IsDefault && v.MenuID == menu.ID {
			return v, nil
		}
	}
	return nil, NotFound("menu %s has no default variation", menu.ID)
}

// CheckMenuRewrite rejects saving next over a stored menu when reservations
// already point at it. savedDate is the stored date and referenced holds the
// variation ids those reservations use, in any status. The date must stay
// and every referenced variation must still be listed.
func CheckMenuRewrite(savedDate time.Time, referenced []string, next Menu) error {
	if len(referenced) == 0 {
		return nil
	}
	if !SameDate(savedDate, next.Date) {
		return Conflict("menu %s has reservations for %s, its date cannot change to %s",
			next.ID, FormatDate(savedDate), FormatDate(next.Date))
	}
	listed := make(map[string]bool, len(next.Variations))
	for _, v := range next.Variations {
		listed[v.ID] = true
	}
	for _, id := range referenced {
		if !listed[id] {
			return Conflict("variation %s of menu %s is used by reservations and cannot be removed", id, next.ID)
		}
	}
	return nil
}
