package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
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

// InTx runs fn with a repository bound to a single transaction. Nested calls
// reuse the surrounding transaction.
func (r *PGRepository) InTx(ctx context.Context, fn func(inventory.Repository) error) error {
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

const stockLevelColumns = `id, organization_id, product_id, variant_id, location_id,
	quantity_on_hand, quantity_reserved, quantity_available, reorder_point, updated_at`

func (r *PGRepository) getStockLevel(ctx context.Context, productID string, variantID *string, locationID string, forUpdate bool) (*model.StockLevel, error) {
	query := `SELECT ` + stockLevelColumns + ` FROM stock_levels WHERE product_id = $1 AND location_id = $2`
	args := []interface{}{productID, locationID}

	if variantID != nil && *variantID != "" {
		query += ` AND variant_id = $3`
		args = append(args, *variantID)
	} else {
		query += ` AND variant_id IS NULL`
	}
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var lvl model.StockLevel
	err := sqlx.GetContext(ctx, r.ext, &lvl, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // caller creates the row lazily
		}
		return nil, fmt.Errorf("get stock level: %w", err)
	}
	return &lvl, nil
}

func (r *PGRepository) GetStockLevel(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error) {
	return r.getStockLevel(ctx, productID, variantID, locationID, false)
}

// GetStockLevelForUpdate locks the row (SELECT ... FOR UPDATE) so the
// read-validate-write sequence of a mutation cannot interleave with a
// concurrent mutation on the same key.
func (r *PGRepository) GetStockLevelForUpdate(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error) {
	return r.getStockLevel(ctx, productID, variantID, locationID, true)
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
			reorder_point = EXCLUDED.reorder_point,
			updated_at = EXCLUDED.updated_at
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, lvl)
	if err != nil {
		return fmt.Errorf("upsert stock level: %w", err)
	}
	return nil
}

func (r *PGRepository) ListStockLevels(ctx context.Context, productID string, variantID *string) ([]model.StockLevel, error) {
	query := `SELECT ` + stockLevelColumns + ` FROM stock_levels WHERE product_id = $1`
	args := []interface{}{productID}
	if variantID != nil && *variantID != "" {
		query += ` AND variant_id = $2`
		args = append(args, *variantID)
	}
	query += ` ORDER BY location_id, variant_id NULLS FIRST`

	items := []model.StockLevel{}
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	return items, nil
}

func (r *PGRepository) ListBelowReorderPoint(ctx context.Context, productID string) ([]model.StockLevel, error) {
	query := `SELECT ` + stockLevelColumns + ` FROM stock_levels
		WHERE product_id = $1 AND reorder_point IS NOT NULL AND quantity_available <= reorder_point
		ORDER BY quantity_available ASC`

	items := []model.StockLevel{}
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, productID); err != nil {
		return nil, fmt.Errorf("list below reorder point: %w", err)
	}
	return items, nil
}

func (r *PGRepository) InsertTransaction(ctx context.Context, txn *model.InventoryTransaction) error {
	query := `
		INSERT INTO inventory_transactions (
			id, organization_id, product_id, variant_id, location_id,
			type, quantity_change, reason, actor_id, order_item_ref,
			transaction_date, created_at
		)
		VALUES (
			:id, :organization_id, :product_id, :variant_id, :location_id,
			:type, :quantity_change, :reason, :actor_id, :order_item_ref,
			:transaction_date, :created_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, txn)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *PGRepository) ListTransactions(ctx context.Context, f *dto.TransactionFilters) ([]model.InventoryTransaction, int, error) {
	conditions := []string{"product_id = :product_id"}
	args := map[string]interface{}{"product_id": f.ProductID}

	if f.OrganizationID != "" {
		conditions = append(conditions, "organization_id = :organization_id")
		args["organization_id"] = f.OrganizationID
	}
	if f.VariantID != nil {
		if *f.VariantID == "" {
			conditions = append(conditions, "variant_id IS NULL")
		} else {
			conditions = append(conditions, "variant_id = :variant_id")
			args["variant_id"] = *f.VariantID
		}
	}
	if f.Type != "" {
		conditions = append(conditions, "type = :type")
		args["type"] = f.Type
	}
	if f.ActorID != "" {
		conditions = append(conditions, "actor_id = :actor_id")
		args["actor_id"] = f.ActorID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "transaction_date >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "transaction_date <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := " WHERE " + strings.Join(conditions, " AND ")

	var count int
	countQuery := "SELECT count(*) FROM inventory_transactions" + whereClause
	rows, err := sqlx.NamedQueryContext(ctx, r.ext, countQuery, args)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}

	query := `SELECT id, organization_id, product_id, variant_id, location_id,
			type, quantity_change, reason, actor_id, order_item_ref, transaction_date, created_at
		FROM inventory_transactions` + whereClause + ` ORDER BY transaction_date DESC, created_at DESC`
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	query, posArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, 0, err
	}
	query = r.ext.Rebind(query)

	items := []model.InventoryTransaction{}
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, posArgs...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return items, count, nil
}

func (r *PGRepository) SummarizeTransactions(ctx context.Context, f *dto.SummaryFilters) ([]dto.TransactionSummaryRow, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.OrganizationID != "" {
		conditions = append(conditions, "organization_id = :organization_id")
		args["organization_id"] = f.OrganizationID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.VariantID != nil && *f.VariantID != "" {
		conditions = append(conditions, "variant_id = :variant_id")
		args["variant_id"] = *f.VariantID
	}
	if f.StartDate != nil {
		conditions = append(conditions, "transaction_date >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "transaction_date <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT type, COALESCE(SUM(quantity_change), 0) AS total_change, COUNT(*) AS count
		FROM inventory_transactions` + whereClause + ` GROUP BY type ORDER BY type`

	query, posArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, err
	}
	query = r.ext.Rebind(query)

	rows := []dto.TransactionSummaryRow{}
	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, posArgs...); err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}
	return rows, nil
}

// DeleteTransactionsBefore is the retention purge: strictly age-based, the
// only path that removes ledger rows.
func (r *PGRepository) DeleteTransactionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.ext.ExecContext(ctx,
		`DELETE FROM inventory_transactions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge transactions: %w", err)
	}
	return res.RowsAffected()
}

func (r *PGRepository) InsertMovement(ctx context.Context, m *model.InventoryMovement) error {
	query := `
		INSERT INTO inventory_movements (
			id, organization_id, transaction_id, product_id, variant_id,
			from_location_id, to_location_id, quantity, movement_type, created_at
		)
		VALUES (
			:id, :organization_id, :transaction_id, :product_id, :variant_id,
			:from_location_id, :to_location_id, :quantity, :movement_type, :created_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, m)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (r *PGRepository) SumAvailableByProduct(ctx context.Context, productID string) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, r.ext, &total,
		`SELECT COALESCE(SUM(quantity_available), 0) FROM stock_levels WHERE product_id = $1`, productID)
	if err != nil {
		return 0, fmt.Errorf("sum available: %w", err)
	}
	return total, nil
}

func (r *PGRepository) SetProductTotalStock(ctx context.Context, productID string, total int64) error {
	_, err := r.ext.ExecContext(ctx,
		`UPDATE products SET total_stock = $2, updated_at = now() WHERE id = $1`, productID, total)
	if err != nil {
		return fmt.Errorf("set product total stock: %w", err)
	}
	return nil
}
