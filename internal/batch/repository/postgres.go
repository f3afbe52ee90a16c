package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/batch"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	ext sqlx.ExtContext
	db  *sqlx.DB // nil when bound to a transaction
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{ext: db, db: db}
}

func (r *PGRepository) InTx(ctx context.Context, fn func(batch.Repository) error) error {
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

const batchColumns = `id, organization_id, product_id, batch_number, quantity, quantity_used,
	manufacturing_date, expiration_date, location_id, created_at, updated_at`

func (r *PGRepository) getBatch(ctx context.Context, batchID string, forUpdate bool) (*model.InventoryBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM inventory_batches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var b model.InventoryBatch
	err := sqlx.GetContext(ctx, r.ext, &b, query, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

func (r *PGRepository) GetBatch(ctx context.Context, batchID string) (*model.InventoryBatch, error) {
	return r.getBatch(ctx, batchID, false)
}

func (r *PGRepository) GetBatchForUpdate(ctx context.Context, batchID string) (*model.InventoryBatch, error) {
	return r.getBatch(ctx, batchID, true)
}

func (r *PGRepository) BatchNumberExists(ctx context.Context, productID, batchNumber string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.ext, &exists,
		`SELECT EXISTS(SELECT 1 FROM inventory_batches WHERE product_id = $1 AND batch_number = $2)`,
		productID, batchNumber)
	if err != nil {
		return false, fmt.Errorf("batch number exists: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) InsertBatch(ctx context.Context, b *model.InventoryBatch) error {
	query := `
		INSERT INTO inventory_batches (
			id, organization_id, product_id, batch_number, quantity, quantity_used,
			manufacturing_date, expiration_date, location_id, created_at, updated_at
		)
		VALUES (
			:id, :organization_id, :product_id, :batch_number, :quantity, :quantity_used,
			:manufacturing_date, :expiration_date, :location_id, :created_at, :updated_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, b)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *PGRepository) UpdateBatch(ctx context.Context, b *model.InventoryBatch) error {
	query := `
		UPDATE inventory_batches SET
			quantity = :quantity,
			quantity_used = :quantity_used,
			location_id = :location_id,
			updated_at = :updated_at
		WHERE id = :id
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, b)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

func (r *PGRepository) DeleteBatch(ctx context.Context, batchID string) error {
	if _, err := r.ext.ExecContext(ctx, `DELETE FROM inventory_batches WHERE id = $1`, batchID); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

func (r *PGRepository) CountSerials(ctx context.Context, batchID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.ext, &count,
		`SELECT count(*) FROM serial_numbers WHERE batch_id = $1`, batchID)
	if err != nil {
		return 0, fmt.Errorf("count serials: %w", err)
	}
	return count, nil
}

func (r *PGRepository) InsertSerials(ctx context.Context, serials []model.SerialNumber) error {
	if len(serials) == 0 {
		return nil
	}
	query := `
		INSERT INTO serial_numbers (
			id, organization_id, product_id, batch_id, serial, status, created_at
		)
		VALUES (
			:id, :organization_id, :product_id, :batch_id, :serial, :status, :created_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, serials)
	if err != nil {
		return fmt.Errorf("insert serials: %w", err)
	}
	return nil
}

func (r *PGRepository) ListExpiring(ctx context.Context, organizationID string, from, to time.Time) ([]model.InventoryBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM inventory_batches
		WHERE expiration_date IS NOT NULL
		  AND expiration_date >= $1 AND expiration_date <= $2
		  AND quantity - quantity_used > 0`
	args := []interface{}{from, to}
	if organizationID != "" {
		args = append(args, organizationID)
		query += fmt.Sprintf(` AND organization_id = $%d`, len(args))
	}
	query += ` ORDER BY expiration_date ASC`

	items := []model.InventoryBatch{}
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list expiring batches: %w", err)
	}
	return items, nil
}

func (r *PGRepository) ListExpired(ctx context.Context, organizationID string, now time.Time) ([]model.InventoryBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM inventory_batches
		WHERE expiration_date IS NOT NULL
		  AND expiration_date < $1
		  AND quantity - quantity_used > 0`
	args := []interface{}{now}
	if organizationID != "" {
		args = append(args, organizationID)
		query += fmt.Sprintf(` AND organization_id = $%d`, len(args))
	}
	query += ` ORDER BY expiration_date ASC`

	items := []model.InventoryBatch{}
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list expired batches: %w", err)
	}
	return items, nil
}
