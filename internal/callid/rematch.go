package callid

import (
	"sort"
)

// Slot names in assignment order: two landline slots, two cell slots.
var slotOrder = []string{"L1", "L2", "C1", "C2"}

// SlotAssignment is one caller-ID phone number bound to a project slot.
type SlotAssignment struct {
	Slot          string `json:"slot"`
	PhoneNumberID int    `json:"phoneNumberId"`
	PhoneNumber   string `json:"phoneNumber"`
	AreaCode      string `json:"areaCode"`
	State         string `json:"state"`
}

// SlotDetail is a re-matched slot assignment with movement tracking.
type SlotDetail struct {
	SlotAssignment
	OriginalSlot  string `json:"originalSlot"`
	MovedFromSlot bool   `json:"movedFromSlot"`
}

// Rematch re-ranks a project's existing caller-ID numbers against the
// ranked area codes of a newly uploaded table.
//
// Numbers whose area code ranks higher in the new table move to earlier
// slots; numbers with unranked area codes sort last in their original
// relative order. The sorted list is reassigned positionally to L1, L2,
// C1, C2, and any assignment whose slot changed is flagged.
func Rematch(existing []SlotAssignment, rankedAreaCodes []string) []SlotDetail {
	priority := make(map[string]int, len(rankedAreaCodes))
	for i, ac := range rankedAreaCodes {
		if _, seen := priority[ac]; !seen {
			priority[ac] = i
		}
	}

	rank := func(a SlotAssignment) int {
		if r, ok := priority[a.AreaCode]; ok {
			return r
		}
		return len(rankedAreaCodes)
	}

	sorted := make([]SlotAssignment, len(existing))
	copy(sorted, existing)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank(sorted[i]) < rank(sorted[j])
	})

	details := make([]SlotDetail, 0, len(sorted))
	for i, a := range sorted {
		if i >= len(slotOrder) {
			break
		}
		detail := SlotDetail{
			SlotAssignment: a,
			OriginalSlot:   a.Slot,
			MovedFromSlot:  a.Slot != slotOrder[i],
		}
		detail.Slot = slotOrder[i]
		details = append(details, detail)
	}
	return details
}
