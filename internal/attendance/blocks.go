// Package attendance holds the pure rules of the attendance lifecycle: how a
// day's timetable becomes continuous obligation blocks and how a record moves
// between states. Nothing here touches storage or the clock.
package attendance

import (
	"sort"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// SortSlots orders slots by start time. Zero-padded HH:mm strings sort
// chronologically, so string comparison is sufficient.
func SortSlots(slots []models.TimeSlot) []models.TimeSlot {
	sorted := make([]models.TimeSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})
	return sorted
}

// GroupBlocks partitions a start-time-sorted slot list into continuous blocks.
// External slots end the running block and are never part of one.
func GroupBlocks(slots []models.TimeSlot) []models.ContinuousBlock {
	var (
		blocks  []models.ContinuousBlock
		current []models.TimeSlot
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		blocks = append(blocks, models.ContinuousBlock{
			Slots:     current,
			StartTime: current[0].StartTime,
			EndTime:   current[len(current)-1].EndTime,
		})
		current = nil
	}

	for _, slot := range slots {
		if slot.Type == models.SlotTypeExternal {
			flush()
			continue
		}
		if !slot.Type.IsObligation() {
			continue
		}
		current = append(current, slot)
	}
	flush()

	return blocks
}
