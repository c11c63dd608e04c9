package tariff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxBands is the number of tariff bands a rate table can hold.
const MaxBands = 7

const (
	firstHourFrom = 1
	firstHourTo   = 59
	minutesInHour = 60
)

var (
	// ErrInvalidRange is returned for malformed band range strings.
	ErrInvalidRange = errors.New("tariff: invalid range")
	// ErrInvalidRateTable is returned when a rate table fails validation.
	ErrInvalidRateTable = errors.New("tariff: invalid rate table")
)

// Range is an inclusive minute interval. The zero value means "not configured".
type Range struct {
	Min int
	Max int
}

// ParseRange accepts "a-b" or a single "a". An empty string yields the zero Range.
func ParseRange(raw string) (Range, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Range{}, nil
	}

	lo, hi, found := strings.Cut(raw, "-")
	if !found {
		hi = lo
	}
	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("%w %q", ErrInvalidRange, raw)
	}
	to, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, fmt.Errorf("%w %q", ErrInvalidRange, raw)
	}
	if from < 1 || to < from {
		return Range{}, fmt.Errorf("%w %q: need 1 <= min <= max", ErrInvalidRange, raw)
	}
	return Range{Min: from, Max: to}, nil
}

// IsZero reports whether the range is unset.
func (r Range) IsZero() bool {
	return r.Min == 0 && r.Max == 0
}

// Contains reports whether minutes falls within the range.
func (r Range) Contains(minutes int) bool {
	return !r.IsZero() && minutes >= r.Min && minutes <= r.Max
}

func (r Range) String() string {
	if r.IsZero() {
		return ""
	}
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// MarshalText encodes the range in its configuration form.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes the configuration form.
func (r *Range) UnmarshalText(text []byte) error {
	parsed, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Band is a named minute range charged at a flat fee.
type Band struct {
	Name  string          `json:"name"`
	Range Range           `json:"range"`
	Fee   decimal.Decimal `json:"fee"`
}

// Configured reports whether the band slot carries a range.
func (b Band) Configured() bool {
	return !b.Range.IsZero()
}

// AuxFees are flat fees consumed by callers; the engine never applies them.
type AuxFees struct {
	Extra     decimal.Decimal `json:"extra"`
	Auxiliary decimal.Decimal `json:"auxiliary"`
	Night     decimal.Decimal `json:"night"`
	Weekend   decimal.Decimal `json:"weekend"`
}

// RateTable is the validated tariff of one vehicle class.
type RateTable struct {
	VehicleClass string  `json:"vehicle_class"`
	Bands        []Band  `json:"bands"`
	Fees         AuxFees `json:"fees"`
}

// Band returns the 1-based band n, or false when the slot is empty.
func (t *RateTable) Band(n int) (Band, bool) {
	if t == nil || n < 1 || n > len(t.Bands) {
		return Band{}, false
	}
	b := t.Bands[n-1]
	return b, b.Configured()
}

// BandSpec is the raw configuration of a band as found in YAML or the database.
type BandSpec struct {
	Name  string `yaml:"name" json:"name"`
	Range string `yaml:"range" json:"range"`
	Fee   string `yaml:"fee" json:"fee"`
}

// RateTableSpec is the raw configuration of a rate table.
type RateTableSpec struct {
	Bands        []BandSpec `yaml:"bands" json:"bands"`
	ExtraFee     string     `yaml:"extraFee" json:"extra_fee"`
	AuxiliaryFee string     `yaml:"auxiliaryFee" json:"auxiliary_fee"`
	NightFee     string     `yaml:"nightFee" json:"night_fee"`
	WeekendFee   string     `yaml:"weekendFee" json:"weekend_fee"`
}

// ParseRateTable converts a raw spec into a typed table and validates it.
func ParseRateTable(vehicleClass string, spec RateTableSpec) (*RateTable, error) {
	vehicleClass = strings.TrimSpace(vehicleClass)
	if vehicleClass == "" {
		return nil, fmt.Errorf("%w: vehicle class is empty", ErrInvalidRateTable)
	}
	if len(spec.Bands) > MaxBands {
		return nil, fmt.Errorf("%w: %s has %d bands, max %d", ErrInvalidRateTable, vehicleClass, len(spec.Bands), MaxBands)
	}

	table := &RateTable{
		VehicleClass: vehicleClass,
		Bands:        make([]Band, 0, len(spec.Bands)),
	}
	for i, bs := range spec.Bands {
		rng, err := ParseRange(bs.Range)
		if err != nil {
			return nil, fmt.Errorf("%w: %s band %d: %v", ErrInvalidRateTable, vehicleClass, i+1, err)
		}
		fee, err := parseAmount(bs.Fee)
		if err != nil {
			return nil, fmt.Errorf("%w: %s band %d fee: %v", ErrInvalidRateTable, vehicleClass, i+1, err)
		}
		name := strings.TrimSpace(bs.Name)
		if name == "" {
			name = fmt.Sprintf("band %d", i+1)
		}
		table.Bands = append(table.Bands, Band{Name: name, Range: rng, Fee: fee})
	}

	var err error
	fees := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{spec.ExtraFee, &table.Fees.Extra},
		{spec.AuxiliaryFee, &table.Fees.Auxiliary},
		{spec.NightFee, &table.Fees.Night},
		{spec.WeekendFee, &table.Fees.Weekend},
	}
	for _, f := range fees {
		if *f.dst, err = parseAmount(f.raw); err != nil {
			return nil, fmt.Errorf("%w: %s auxiliary fee: %v", ErrInvalidRateTable, vehicleClass, err)
		}
	}

	if err := Validate(table); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate checks that bands 1-2 and bands 3-4 each tile minutes 1..59 without
// gaps or overlaps, and that an hourly band exists.
func Validate(t *RateTable) error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidRateTable)
	}
	if len(t.Bands) > MaxBands {
		return fmt.Errorf("%w: %s has %d bands, max %d", ErrInvalidRateTable, t.VehicleClass, len(t.Bands), MaxBands)
	}
	for i, b := range t.Bands {
		if b.Fee.IsNegative() {
			return fmt.Errorf("%w: %s band %d has negative fee", ErrInvalidRateTable, t.VehicleClass, i+1)
		}
		if b.Configured() && (b.Range.Min < 1 || b.Range.Max < b.Range.Min) {
			return fmt.Errorf("%w: %s band %d range %s", ErrInvalidRateTable, t.VehicleClass, i+1, b.Range)
		}
	}

	if err := checkCoverage(t, "bands 1-2", 1, 2); err != nil {
		return err
	}
	if err := checkCoverage(t, "bands 3-4", 3, 4); err != nil {
		return err
	}
	if _, ok := hourlyBand(t); !ok {
		return fmt.Errorf("%w: %s has no hourly band (band 3 or 4)", ErrInvalidRateTable, t.VehicleClass)
	}
	return nil
}

func checkCoverage(t *RateTable, label string, first, second int) error {
	gapStart := 0
	for m := firstHourFrom; m <= firstHourTo; m++ {
		hits := 0
		for _, n := range []int{first, second} {
			if b, ok := t.Band(n); ok && b.Range.Contains(m) {
				hits++
			}
		}
		switch {
		case hits > 1:
			return fmt.Errorf("%w: %s %s overlap at minute %d", ErrInvalidRateTable, t.VehicleClass, label, m)
		case hits == 0 && gapStart == 0:
			gapStart = m
		case hits == 1 && gapStart != 0:
			return fmt.Errorf("%w: %s %s leave minutes %d-%d uncovered", ErrInvalidRateTable, t.VehicleClass, label, gapStart, m-1)
		}
	}
	if gapStart != 0 {
		return fmt.Errorf("%w: %s %s leave minutes %d-%d uncovered", ErrInvalidRateTable, t.VehicleClass, label, gapStart, firstHourTo)
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", raw)
	}
	return d, nil
}
