package count

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestRecalculate(t *testing.T) {
	lines := []CountLine{
		{ID: 1, SystemStock: 10, UnitPrice: 100, Actual: intPtr(8)},
		{ID: 2, SystemStock: 5, UnitPrice: 50, Actual: intPtr(5)},
		{ID: 3, SystemStock: 3, UnitPrice: 200, Actual: intPtr(4)},
		{ID: 4, SystemStock: 7, UnitPrice: 10},
	}

	agg := Recalculate(lines)
	require.Equal(t, 4, agg.TotalItems)
	require.Equal(t, 3, agg.ItemsCounted)
	require.Equal(t, 2, agg.ItemsWithVariance)
	// (8-10)*100 + (5-5)*50 + (4-3)*200
	require.InDelta(t, 0.0, agg.VarianceValue, 0.001)
}

func TestRecalculateEmptyAndUncounted(t *testing.T) {
	require.Equal(t, Aggregates{}, Recalculate(nil))

	agg := Recalculate([]CountLine{
		{ID: 1, SystemStock: 10, UnitPrice: 100},
		{ID: 2, SystemStock: 5, UnitPrice: 50},
	})
	require.Equal(t, Aggregates{TotalItems: 2}, agg)
}

func TestRecalculateNegativeVariance(t *testing.T) {
	agg := Recalculate([]CountLine{
		{ID: 1, SystemStock: 10, UnitPrice: 25.5, Actual: intPtr(6)},
	})
	require.Equal(t, 1, agg.ItemsWithVariance)
	require.InDelta(t, -102.0, agg.VarianceValue, 0.001)
}

func TestApplyUpdateSetsVariance(t *testing.T) {
	line := CountLine{ID: 1, SystemStock: 10}

	ApplyUpdate(&line, LineUpdate{LineID: 1, Actual: intPtr(7)})
	require.NotNil(t, line.Variance)
	require.Equal(t, -3, *line.Variance)

	note := "faltante en gondola"
	ApplyUpdate(&line, LineUpdate{LineID: 1, Actual: intPtr(10), Notes: &note})
	require.Equal(t, 0, *line.Variance)
	require.Equal(t, note, *line.Notes)

	// Clearing the actual clears the variance but keeps the note.
	ApplyUpdate(&line, LineUpdate{LineID: 1})
	require.Nil(t, line.Actual)
	require.Nil(t, line.Variance)
	require.Equal(t, note, *line.Notes)
}
