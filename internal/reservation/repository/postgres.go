package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	ext sqlx.ExtContext
	db  *sqlx.DB // nil when bound to a transaction
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{ext: db, db: db}
}

func (r *PGRepository) InTx(ctx context.Context, fn func(reservation.Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&PGRepository{ext: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepository) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	var p model.Product
	err := sqlx.GetContext(ctx, r.ext, &p,
		`SELECT id, organization_id, sku, name, total_stock, track_inventory, is_active, barcode, created_at, updated_at
		 FROM products WHERE id = $1`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *PGRepository) GetLocation(ctx context.Context, locationID string) (*model.Location, error) {
	var l model.Location
	err := sqlx.GetContext(ctx, r.ext, &l,
		`SELECT id, organization_id, name, is_active, created_at, updated_at
		 FROM locations WHERE id = $1`, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

func (r *PGRepository) GetStockLevelForUpdate(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error) {
	query := `SELECT id, organization_id, product_id, variant_id, location_id,
			quantity_on_hand, quantity_reserved, quantity_available, reorder_point, updated_at
		FROM stock_levels WHERE product_id = $1 AND location_id = $2`
	args := []interface{}{productID, locationID}

	if variantID != nil && *variantID != "" {
		query += ` AND variant_id = $3`
		args = append(args, *variantID)
	} else {
		query += ` AND variant_id IS NULL`
	}
	query += ` FOR UPDATE`

	var lvl model.StockLevel
	err := sqlx.GetContext(ctx, r.ext, &lvl, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock level for update: %w", err)
	}
	return &lvl, nil
}

func (r *PGRepository) UpsertStockLevel(ctx context.Context, lvl *model.StockLevel) error {
	query := `
		INSERT INTO stock_levels (
			id, organization_id, product_id, variant_id, location_id,
			quantity_on_hand, quantity_reserved, quantity_available, reorder_point, updated_at
		)
		VALUES (
			:id, :organization_id, :product_id, :variant_id, :location_id,
			:quantity_on_hand, :quantity_reserved, :quantity_available, :reorder_point, :updated_at
		)
		ON CONFLICT (id)
		DO UPDATE SET
			quantity_on_hand = EXCLUDED.quantity_on_hand,
			quantity_reserved = EXCLUDED.quantity_reserved,
			quantity_available = EXCLUDED.quantity_available,
			updated_at = EXCLUDED.updated_at
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, lvl)
	if err != nil {
		return fmt.Errorf("upsert stock level: %w", err)
	}
	return nil
}

func (r *PGRepository) InsertReservation(ctx context.Context, res *model.StockReservation) error {
	query := `
		INSERT INTO stock_reservations (
			id, organization_id, product_id, variant_id, location_id,
			quantity, reserved_for_type, reserved_for_id, status, expires_at, created_at
		)
		VALUES (
			:id, :organization_id, :product_id, :variant_id, :location_id,
			:quantity, :reserved_for_type, :reserved_for_id, :status, :expires_at, :created_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, res)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

const reservationColumns = `id, organization_id, product_id, variant_id, location_id,
	quantity, reserved_for_type, reserved_for_id, status, expires_at, created_at`

func (r *PGRepository) ListActiveForUpdate(ctx context.Context, f *dto.ReleaseInput) ([]model.StockReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations
		WHERE status = 'active' AND product_id = $1 AND location_id = $2`
	args := []interface{}{f.ProductID, f.LocationID}

	if f.VariantID != nil && *f.VariantID != "" {
		args = append(args, *f.VariantID)
		query += fmt.Sprintf(` AND variant_id = $%d`, len(args))
	} else {
		query += ` AND variant_id IS NULL`
	}
	if f.ReservedForType != "" {
		args = append(args, f.ReservedForType)
		query += fmt.Sprintf(` AND reserved_for_type = $%d`, len(args))
	}
	if f.ReservedForID != "" {
		args = append(args, f.ReservedForID)
		query += fmt.Sprintf(` AND reserved_for_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at FOR UPDATE`

	items := []model.StockReservation{}
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	return items, nil
}

func (r *PGRepository) ListExpiredForUpdate(ctx context.Context, now time.Time) ([]model.StockReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations
		WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at
		FOR UPDATE SKIP LOCKED`

	items := []model.StockReservation{}
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, now); err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return items, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE stock_reservations SET status = ? WHERE id IN (?)`, status, ids)
	if err != nil {
		return err
	}
	query = r.ext.Rebind(query)
	if _, err := r.ext.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	return nil
}
