package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/domain"
	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type inventoryUseCase struct {
	repo   inventory.Repository
	locker inventory.Locker
	sink   inventory.EventSink
	logger logger.ZapLogger
}

func NewInventoryUseCase(repo inventory.Repository, locker inventory.Locker, sink inventory.EventSink, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:   repo,
		locker: locker,
		sink:   sink,
		logger: log,
	}
}

// MutateStock applies one stock mutation atomically: scope check, optional
// availability validation, stock level update, ledger append, optional
// movement trace, product rollup. The stock-changed event goes out after the
// transaction commits and never rolls it back.
func (uc *inventoryUseCase) MutateStock(ctx context.Context, caller scope.CallerScope, req *dto.MutationRequest) (*dto.MutationResult, error) {
	if req.ProductID == "" || req.LocationID == "" || req.QuantityChange == 0 || !req.MovementType.Valid() {
		return nil, domain.ErrInvalidInput
	}

	// Per-key lock on top of the row lock, so concurrent mutations of the
	// same key queue here instead of piling up on the database.
	lockKey := stockLockKey(req.ProductID, req.VariantID, req.LocationID)
	lockValue := uuid.New().String()

	acquired := false
	for i := 0; i < 3; i++ {
		ok, err := uc.locker.AcquireLock(ctx, lockKey, lockValue, 5*time.Second)
		if err != nil {
			uc.logger.Error("failed to acquire lock redis error", zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(100 * time.Millisecond) // wait before retry
	}
	if !acquired {
		return nil, errors.New("stock level busy, please try again later (lock)")
	}
	defer uc.locker.ReleaseLock(ctx, lockKey, lockValue)

	var result dto.MutationResult

	err := uc.repo.InTx(ctx, func(r inventory.Repository) error {
		product, _, err := resolveScope(ctx, r, caller, req.ProductID, req.LocationID)
		if err != nil {
			return err
		}

		lvl, err := r.GetStockLevelForUpdate(ctx, req.ProductID, req.VariantID, req.LocationID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if lvl == nil {
			// First touch of this (product, variant, location) key.
			lvl = &model.StockLevel{
				ID:             uuid.New().String(),
				OrganizationID: product.OrganizationID,
				ProductID:      req.ProductID,
				VariantID:      req.VariantID,
				LocationID:     req.LocationID,
			}
		}

		prevAvailable := lvl.QuantityAvailable

		if req.ValidateAvailability && req.QuantityChange < 0 && lvl.QuantityAvailable < -req.QuantityChange {
			return &domain.StockError{
				ProductID:  req.ProductID,
				VariantID:  req.VariantID,
				LocationID: req.LocationID,
				Requested:  -req.QuantityChange,
				Available:  lvl.QuantityAvailable,
			}
		}

		newOnHand := lvl.QuantityOnHand + req.QuantityChange

		var newAvailable int64
		switch req.MovementType {
		case model.MovementSale:
			// Point-of-sale deduction: sales pull straight from the
			// available pool and leave on-hand/reserved reconciliation
			// to the normal movement types.
			newAvailable = prevAvailable - abs(req.QuantityChange)
		case model.MovementStockIn, model.MovementStockOut, model.MovementTransfer,
			model.MovementAdjustment, model.MovementReturn, model.MovementDamage,
			model.MovementExpiration, model.MovementInitial:
			newAvailable = newOnHand - lvl.QuantityReserved
		default:
			return domain.ErrInvalidInput
		}

		// Underflow clamps to zero rather than failing; callers that need a
		// hard floor set ValidateAvailability.
		if newOnHand < 0 {
			newOnHand = 0
		}
		if newAvailable < 0 {
			newAvailable = 0
		}

		lvl.QuantityOnHand = newOnHand
		lvl.QuantityAvailable = newAvailable
		lvl.UpdatedAt = now
		if err := r.UpsertStockLevel(ctx, lvl); err != nil {
			return err
		}

		actor := req.ActorID
		if actor == nil {
			actor = caller.Actor()
		}

		txn := &model.InventoryTransaction{
			ID:              uuid.New().String(),
			OrganizationID:  product.OrganizationID,
			ProductID:       req.ProductID,
			VariantID:       req.VariantID,
			LocationID:      req.LocationID,
			Type:            req.MovementType.LedgerType(),
			QuantityChange:  req.QuantityChange,
			Reason:          req.Reason,
			ActorID:         actor,
			OrderItemRef:    req.OrderItemRef,
			TransactionDate: now,
			CreatedAt:       now,
		}
		if err := r.InsertTransaction(ctx, txn); err != nil {
			return err
		}

		if req.CreateMovementRecord {
			toLocation := req.LocationID
			if req.ToLocationID != nil && *req.ToLocationID != "" {
				toLocation = *req.ToLocationID
			}
			mv := &model.InventoryMovement{
				ID:             uuid.New().String(),
				OrganizationID: product.OrganizationID,
				TransactionID:  txn.ID,
				ProductID:      req.ProductID,
				VariantID:      req.VariantID,
				FromLocationID: req.FromLocationID,
				ToLocationID:   toLocation,
				Quantity:       abs(req.QuantityChange),
				MovementType:   string(req.MovementType),
				CreatedAt:      now,
			}
			if err := r.InsertMovement(ctx, mv); err != nil {
				return err
			}
		}

		// Full re-scan across every location and variant. Deliberately not an
		// incremental delta: the rollup stays correct even if it is recomputed
		// redundantly by concurrent mutations of other keys.
		total, err := r.SumAvailableByProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if err := r.SetProductTotalStock(ctx, req.ProductID, total); err != nil {
			return err
		}

		result = dto.MutationResult{
			StockLevel:        lvl,
			Transaction:       txn,
			PreviousAvailable: prevAvailable,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Post-commit notification. The sink logs and swallows its own failures.
	uc.sink.StockChanged(ctx, events.StockChangedPayload{
		OrganizationID:    result.StockLevel.OrganizationID,
		ProductID:         result.StockLevel.ProductID,
		VariantID:         result.StockLevel.VariantID,
		LocationID:        result.StockLevel.LocationID,
		AvailableQuantity: result.StockLevel.QuantityAvailable,
		TransactionID:     result.Transaction.ID,
		MovementType:      string(req.MovementType),
		ActorID:           result.Transaction.ActorID,
	})

	return &result, nil
}

func (uc *inventoryUseCase) GetStockLevels(ctx context.Context, caller scope.CallerScope, productID string, variantID *string) ([]model.StockLevel, error) {
	if productID == "" {
		return nil, domain.ErrInvalidInput
	}
	product, err := uc.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if !caller.CanAccess(product.OrganizationID) {
		return nil, &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: productID}
	}
	return uc.repo.ListStockLevels(ctx, productID, variantID)
}

// CheckReorderPoints returns the stock levels of a product whose available
// quantity has fallen to or below their reorder point.
func (uc *inventoryUseCase) CheckReorderPoints(ctx context.Context, caller scope.CallerScope, productID string) ([]model.StockLevel, error) {
	if productID == "" {
		return nil, domain.ErrInvalidInput
	}
	product, err := uc.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if !caller.CanAccess(product.OrganizationID) {
		return nil, &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: productID}
	}
	return uc.repo.ListBelowReorderPoint(ctx, productID)
}

func (uc *inventoryUseCase) GetTransactionHistory(ctx context.Context, caller scope.CallerScope, f *dto.TransactionFilters) ([]model.InventoryTransaction, int, error) {
	if f == nil || f.ProductID == "" {
		return nil, 0, domain.ErrInvalidInput
	}
	if !caller.Privileged {
		f.OrganizationID = caller.OrganizationID
	}
	return uc.repo.ListTransactions(ctx, f)
}

func (uc *inventoryUseCase) GetTransactionSummary(ctx context.Context, caller scope.CallerScope, f *dto.SummaryFilters) ([]dto.TransactionSummaryRow, error) {
	if f == nil {
		f = &dto.SummaryFilters{}
	}
	if !caller.Privileged {
		f.OrganizationID = caller.OrganizationID
	}
	return uc.repo.SummarizeTransactions(ctx, f)
}

// PurgeTransactions deletes ledger rows older than the given age. This is the
// only delete path into the ledger and is reserved for the retention job.
func (uc *inventoryUseCase) PurgeTransactions(ctx context.Context, caller scope.CallerScope, olderThan time.Duration) (int64, error) {
	if !caller.Privileged {
		return 0, &domain.ScopeError{OrganizationID: caller.OrganizationID}
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	deleted, err := uc.repo.DeleteTransactionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		uc.logger.Info("purged ledger rows past retention",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// resolveScope loads product and location and enforces organization ownership
// for non-privileged callers.
func resolveScope(ctx context.Context, r inventory.Repository, caller scope.CallerScope, productID, locationID string) (*model.Product, *model.Location, error) {
	product, err := r.GetProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if product == nil {
		return nil, nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	location, err := r.GetLocation(ctx, locationID)
	if err != nil {
		return nil, nil, err
	}
	if location == nil {
		return nil, nil, fmt.Errorf("location %s: %w", locationID, domain.ErrNotFound)
	}
	if !caller.CanAccess(product.OrganizationID) || !caller.CanAccess(location.OrganizationID) {
		return nil, nil, &domain.ScopeError{
			OrganizationID: caller.OrganizationID,
			ProductID:      productID,
			LocationID:     locationID,
		}
	}
	return product, location, nil
}

func stockLockKey(productID string, variantID *string, locationID string) string {
	key := fmt.Sprintf("lock:stock:%s", productID)
	if variantID != nil {
		key += ":" + *variantID
	}
	return key + ":" + locationID
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
