package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	libdb "parkpay/backend/libs/db"
	"parkpay/backend/services/parking-service/internal/models"
	"parkpay/backend/services/parking-service/internal/tariff"
)

// RateRepository stores per-class rate tables as raw band specs.
type RateRepository struct {
	db *sql.DB
}

// NewRateRepository returns repository.
func NewRateRepository(db *sql.DB) *RateRepository {
	return &RateRepository{db: db}
}

// Get loads the stored spec for a vehicle class.
func (r *RateRepository) Get(ctx context.Context, vehicleClass string) (tariff.RateTableSpec, error) {
	var spec tariff.RateTableSpec
	err := libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const headerQuery = `
			SELECT extra_fee::text, auxiliary_fee::text, night_fee::text, weekend_fee::text
			FROM rate_tables
			WHERE vehicle_class = $1
		`
		err := tx.QueryRowContext(ctx, headerQuery, vehicleClass).Scan(
			&spec.ExtraFee,
			&spec.AuxiliaryFee,
			&spec.NightFee,
			&spec.WeekendFee,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrRateTableNotFound
			}
			return fmt.Errorf("get rate table: %w", err)
		}

		const bandsQuery = `
			SELECT position, name, range_text, fee::text
			FROM rate_bands
			WHERE vehicle_class = $1
			ORDER BY position
		`
		rows, err := tx.QueryContext(ctx, bandsQuery, vehicleClass)
		if err != nil {
			return fmt.Errorf("get rate bands: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				position int
				band     tariff.BandSpec
			)
			if err := rows.Scan(&position, &band.Name, &band.Range, &band.Fee); err != nil {
				return fmt.Errorf("scan rate band: %w", err)
			}
			// positions are 1-based and may skip unconfigured bands
			for len(spec.Bands) < position-1 {
				spec.Bands = append(spec.Bands, tariff.BandSpec{})
			}
			spec.Bands = append(spec.Bands, band)
		}
		return rows.Err()
	})
	if err != nil {
		return tariff.RateTableSpec{}, err
	}
	return spec, nil
}

// Save replaces the stored spec for a vehicle class.
func (r *RateRepository) Save(ctx context.Context, vehicleClass string, spec tariff.RateTableSpec) error {
	return libdb.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO rate_tables (vehicle_class, extra_fee, auxiliary_fee, night_fee, weekend_fee, updated_at)
			VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, NOW())
			ON CONFLICT (vehicle_class) DO UPDATE SET
				extra_fee = EXCLUDED.extra_fee,
				auxiliary_fee = EXCLUDED.auxiliary_fee,
				night_fee = EXCLUDED.night_fee,
				weekend_fee = EXCLUDED.weekend_fee,
				updated_at = NOW()
		`
		if _, err := tx.ExecContext(ctx, upsert,
			vehicleClass,
			amountOrZero(spec.ExtraFee),
			amountOrZero(spec.AuxiliaryFee),
			amountOrZero(spec.NightFee),
			amountOrZero(spec.WeekendFee),
		); err != nil {
			return fmt.Errorf("save rate table: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rate_bands WHERE vehicle_class = $1`, vehicleClass); err != nil {
			return fmt.Errorf("clear rate bands: %w", err)
		}

		const insertBand = `
			INSERT INTO rate_bands (vehicle_class, position, name, range_text, fee)
			VALUES ($1, $2, $3, $4, $5::numeric)
		`
		for i, band := range spec.Bands {
			if strings.TrimSpace(band.Range) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, insertBand,
				vehicleClass,
				i+1,
				band.Name,
				strings.TrimSpace(band.Range),
				amountOrZero(band.Fee),
			); err != nil {
				return fmt.Errorf("save rate band %d: %w", i+1, err)
			}
		}
		return nil
	})
}

func amountOrZero(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "0"
	}
	return raw
}
