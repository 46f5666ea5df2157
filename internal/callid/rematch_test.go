package callid

import (
	"testing"
)

func TestRematch_SwapsByNewRanking(t *testing.T) {
	existing := []SlotAssignment{
		{Slot: "L1", PhoneNumberID: 10, PhoneNumber: "2025550100", AreaCode: "202", State: "DC"},
		{Slot: "L2", PhoneNumberID: 11, PhoneNumber: "3015550100", AreaCode: "301", State: "MD"},
	}

	details := Rematch(existing, []string{"301", "202"})

	if len(details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(details))
	}
	if details[0].Slot != "L1" || details[0].AreaCode != "301" {
		t.Errorf("L1 = %+v, want area code 301", details[0])
	}
	if details[1].Slot != "L2" || details[1].AreaCode != "202" {
		t.Errorf("L2 = %+v, want area code 202", details[1])
	}
	for _, d := range details {
		if !d.MovedFromSlot {
			t.Errorf("slot %s should be flagged as moved (was %s)", d.Slot, d.OriginalSlot)
		}
	}
}

func TestRematch_UnrankedSortLast(t *testing.T) {
	existing := []SlotAssignment{
		{Slot: "L1", PhoneNumber: "1", AreaCode: "919"},
		{Slot: "L2", PhoneNumber: "2", AreaCode: "704"},
		{Slot: "C1", PhoneNumber: "3", AreaCode: "336"},
	}

	details := Rematch(existing, []string{"704"})

	if details[0].AreaCode != "704" {
		t.Errorf("ranked area code should lead, got %s", details[0].AreaCode)
	}
	// Unranked codes keep their original relative order.
	if details[1].AreaCode != "919" || details[2].AreaCode != "336" {
		t.Errorf("unranked order = %s, %s, want 919, 336", details[1].AreaCode, details[2].AreaCode)
	}
}

func TestRematch_StableWhenRankingUnchanged(t *testing.T) {
	existing := []SlotAssignment{
		{Slot: "L1", PhoneNumber: "1", AreaCode: "202"},
		{Slot: "L2", PhoneNumber: "2", AreaCode: "301"},
	}

	details := Rematch(existing, []string{"202", "301"})

	for _, d := range details {
		if d.MovedFromSlot {
			t.Errorf("slot %s flagged as moved with unchanged ranking", d.Slot)
		}
		if d.Slot != d.OriginalSlot {
			t.Errorf("slot %s changed from %s with unchanged ranking", d.Slot, d.OriginalSlot)
		}
	}
}

func TestRematch_MoreNumbersThanSlots(t *testing.T) {
	existing := []SlotAssignment{
		{Slot: "L1", PhoneNumber: "1", AreaCode: "202"},
		{Slot: "L2", PhoneNumber: "2", AreaCode: "301"},
		{Slot: "C1", PhoneNumber: "3", AreaCode: "410"},
		{Slot: "C2", PhoneNumber: "4", AreaCode: "443"},
		{Slot: "X9", PhoneNumber: "5", AreaCode: "999"},
	}

	details := Rematch(existing, nil)
	if len(details) != 4 {
		t.Fatalf("expected at most 4 slots, got %d", len(details))
	}
}
