package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

func slot(start, end string, typ models.SlotType) models.TimeSlot {
	return models.TimeSlot{StartTime: start, EndTime: end, Subject: string(typ), Type: typ}
}

func TestGroupBlocksSplitsOnExternal(t *testing.T) {
	slots := []models.TimeSlot{
		slot("09:00", "10:30", models.SlotTypeClass),
		slot("10:30", "12:00", models.SlotTypeSelfStudy),
		slot("12:00", "14:00", models.SlotTypeExternal),
		slot("14:00", "16:00", models.SlotTypeClass),
		slot("16:00", "18:00", models.SlotTypeSelfStudy),
	}

	blocks := GroupBlocks(slots)
	require.Len(t, blocks, 2)
	assert.Equal(t, "09:00", blocks[0].StartTime)
	assert.Equal(t, "12:00", blocks[0].EndTime)
	assert.Len(t, blocks[0].Slots, 2)
	assert.Equal(t, "14:00", blocks[1].StartTime)
	assert.Equal(t, "18:00", blocks[1].EndTime)
}

func TestGroupBlocksEmptyInputs(t *testing.T) {
	assert.Empty(t, GroupBlocks(nil))
	assert.Empty(t, GroupBlocks([]models.TimeSlot{
		slot("08:00", "09:00", models.SlotTypeExternal),
		slot("09:00", "10:00", models.SlotTypeExternal),
	}))
}

func TestGroupBlocksLeadingAndConsecutiveExternals(t *testing.T) {
	slots := []models.TimeSlot{
		slot("07:00", "08:00", models.SlotTypeExternal),
		slot("08:00", "09:00", models.SlotTypeClass),
		slot("09:00", "10:00", models.SlotTypeExternal),
		slot("10:00", "11:00", models.SlotTypeExternal),
		slot("11:00", "12:00", models.SlotTypeSelfStudy),
	}
	blocks := GroupBlocks(slots)
	require.Len(t, blocks, 2)
	assert.Equal(t, "08:00", blocks[0].StartTime)
	assert.Equal(t, "11:00", blocks[1].StartTime)
}

func TestGroupBlocksPreservesObligationSlots(t *testing.T) {
	inputs := [][]models.TimeSlot{
		{slot("09:00", "10:00", models.SlotTypeClass)},
		{
			slot("09:00", "10:00", models.SlotTypeClass),
			slot("10:00", "11:00", models.SlotTypeExternal),
			slot("11:00", "12:00", models.SlotTypeClass),
			slot("12:00", "13:00", models.SlotTypeSelfStudy),
			slot("13:00", "14:00", models.SlotTypeExternal),
		},
		{
			slot("06:00", "07:00", models.SlotTypeExternal),
			slot("07:00", "08:00", models.SlotTypeSelfStudy),
		},
	}

	for _, in := range inputs {
		var want []models.TimeSlot
		for _, s := range in {
			if s.Type != models.SlotTypeExternal {
				want = append(want, s)
			}
		}

		var got []models.TimeSlot
		for _, block := range GroupBlocks(in) {
			for _, s := range block.Slots {
				assert.NotEqual(t, models.SlotTypeExternal, s.Type)
			}
			got = append(got, block.Slots...)
		}
		assert.Equal(t, want, got)
	}
}

func TestSortSlotsDoesNotMutateInput(t *testing.T) {
	in := []models.TimeSlot{
		slot("14:00", "15:00", models.SlotTypeClass),
		slot("09:00", "10:00", models.SlotTypeClass),
	}
	sorted := SortSlots(in)
	assert.Equal(t, "09:00", sorted[0].StartTime)
	assert.Equal(t, "14:00", in[0].StartTime)
}
