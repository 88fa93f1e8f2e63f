package count

// Recalculate derives the summary counters from the full line set. It
// is a pure function: services recompute and persist the result after
// every line mutation so historical counts keep the aggregate as it
// stood at submission, rather than deriving it lazily at read time.
func Recalculate(lines []CountLine) Aggregates {
	agg := Aggregates{TotalItems: len(lines)}
	for _, line := range lines {
		if line.Actual == nil {
			continue
		}
		agg.ItemsCounted++
		variance := *line.Actual - line.SystemStock
		if variance != 0 {
			agg.ItemsWithVariance++
		}
		agg.VarianceValue += float64(variance) * line.UnitPrice
	}
	return agg
}

// ApplyUpdate mutates a line with an update, keeping the stored
// variance consistent: variance exists only while an actual count does.
func ApplyUpdate(line *CountLine, update LineUpdate) {
	line.Actual = update.Actual
	if update.Actual != nil {
		v := *update.Actual - line.SystemStock
		line.Variance = &v
	} else {
		line.Variance = nil
	}
	if update.Notes != nil {
		line.Notes = update.Notes
	}
}
