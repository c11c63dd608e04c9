package tariff

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInterval is returned when exit precedes entry.
	ErrInvalidInterval = errors.New("tariff: exit time before entry time")
	// ErrNoRateTable is returned when the engine is called without a table.
	ErrNoRateTable = errors.New("tariff: rate table is required")
)

// Elapsed breaks an interval down the way receipts show it.
type Elapsed struct {
	Hours           int   `json:"hours"`
	Minutes         int   `json:"minutes"`
	Seconds         int   `json:"seconds"`
	TotalMinutes    int   `json:"total_minutes"`
	BillableMinutes int   `json:"billable_minutes"`
	TotalSeconds    int64 `json:"total_seconds"`
}

// Line is one charged item of a fare.
type Line struct {
	Description string          `json:"description"`
	Minutes     int             `json:"minutes"`
	UnitFee     decimal.Decimal `json:"unit_fee"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// FareResult is the full breakdown of a computed fare.
type FareResult struct {
	VehicleClass string          `json:"vehicle_class"`
	EntryTime    time.Time       `json:"entry_time"`
	ExitTime     time.Time       `json:"exit_time"`
	Elapsed      Elapsed         `json:"elapsed"`
	Lines        []Line          `json:"lines"`
	Total        decimal.Decimal `json:"total"`
}

// ComputeFare prices the stay between entry and exit against table.
// It has no side effects; equal inputs always give equal results.
func ComputeFare(entry, exit time.Time, table *RateTable) (*FareResult, error) {
	if table == nil {
		return nil, ErrNoRateTable
	}
	d := exit.Sub(entry)
	if d < 0 {
		return nil, fmt.Errorf("%w: entry %s, exit %s", ErrInvalidInterval, entry.Format(time.RFC3339), exit.Format(time.RFC3339))
	}

	seconds := int64(d / time.Second)
	elapsed := elapsedFor(seconds)

	result := &FareResult{
		VehicleClass: table.VehicleClass,
		EntryTime:    entry,
		ExitTime:     exit,
		Elapsed:      elapsed,
		Lines:        []Line{},
		Total:        decimal.Zero,
	}

	switch {
	case elapsed.BillableMinutes == 0:
	case elapsed.BillableMinutes < minutesInHour:
		result.Lines = append(result.Lines, matchLine(table, elapsed.BillableMinutes, 1, 2))
	default:
		hours := elapsed.TotalMinutes / minutesInHour
		remainder := elapsed.TotalMinutes % minutesInHour
		if hours > 0 {
			hourly, _ := hourlyBand(table)
			result.Lines = append(result.Lines, Line{
				Description: fmt.Sprintf("%s x%d", hourly.Name, hours),
				Minutes:     hours * minutesInHour,
				UnitFee:     hourly.Fee,
				Subtotal:    hourly.Fee.Mul(decimal.NewFromInt(int64(hours))),
			})
		}
		if remainder > 0 {
			result.Lines = append(result.Lines, matchLine(table, remainder, 3, 4))
		}
	}

	for _, line := range result.Lines {
		result.Total = result.Total.Add(line.Subtotal)
	}
	return result, nil
}

// BillableMinutes rounds seconds up to whole minutes; any positive stay is at least one minute.
func BillableMinutes(seconds int64) int {
	if seconds <= 0 {
		return 0
	}
	return int((seconds + 59) / 60)
}

func elapsedFor(seconds int64) Elapsed {
	return Elapsed{
		Hours:           int(seconds / 3600),
		Minutes:         int(seconds % 3600 / 60),
		Seconds:         int(seconds % 60),
		TotalMinutes:    int(seconds / 60),
		BillableMinutes: BillableMinutes(seconds),
		TotalSeconds:    seconds,
	}
}

// matchLine charges the first of the candidate bands whose range contains minutes.
// A gap yields a zero line instead of an error.
func matchLine(table *RateTable, minutes int, candidates ...int) Line {
	for _, n := range candidates {
		b, ok := table.Band(n)
		if ok && b.Range.Contains(minutes) {
			return Line{
				Description: b.Name,
				Minutes:     minutes,
				UnitFee:     b.Fee,
				Subtotal:    b.Fee,
			}
		}
	}
	return Line{
		Description: fmt.Sprintf("unmatched %d min", minutes),
		Minutes:     minutes,
		UnitFee:     decimal.Zero,
		Subtotal:    decimal.Zero,
	}
}

// hourlyBand picks the band charged per completed hour: band 4 when its lower
// bound admits a 60 minute span, then band 3, then band 4 whatever its range.
func hourlyBand(table *RateTable) (Band, bool) {
	b4, ok4 := table.Band(4)
	if ok4 && b4.Range.Min <= minutesInHour {
		return b4, true
	}
	if b3, ok3 := table.Band(3); ok3 {
		return b3, true
	}
	if ok4 {
		return b4, true
	}
	if len(table.Bands) >= 4 {
		return table.Bands[3], false
	}
	return Band{Name: "hourly", Fee: decimal.Zero}, false
}
