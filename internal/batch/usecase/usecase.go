package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/batch"
	"github.com/fekuna/omnipos-inventory-service/internal/batch/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/domain"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type batchUseCase struct {
	repo   batch.Repository
	engine inventory.UseCase
	logger logger.ZapLogger
}

func NewBatchUseCase(repo batch.Repository, engine inventory.UseCase, log logger.ZapLogger) batch.UseCase {
	return &batchUseCase{repo: repo, engine: engine, logger: log}
}

func (uc *batchUseCase) CreateBatch(ctx context.Context, caller scope.CallerScope, in *dto.CreateBatchInput) (*model.InventoryBatch, error) {
	if in.ProductID == "" || in.LocationID == "" || in.BatchNumber == "" || in.Quantity <= 0 {
		return nil, domain.ErrInvalidInput
	}
	if in.ManufacturingDate != nil && in.ExpirationDate != nil && !in.ExpirationDate.After(*in.ManufacturingDate) {
		return nil, domain.ErrInvalidDateRange
	}

	product, err := uc.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("product %s: %w", in.ProductID, domain.ErrNotFound)
	}
	if !caller.CanAccess(product.OrganizationID) {
		return nil, &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: in.ProductID}
	}

	exists, err := uc.repo.BatchNumberExists(ctx, in.ProductID, in.BatchNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("batch %s for product %s: %w", in.BatchNumber, in.ProductID, domain.ErrDuplicateBatchNumber)
	}

	now := time.Now().UTC()
	b := &model.InventoryBatch{
		BaseModel: model.BaseModel{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		OrganizationID:    product.OrganizationID,
		ProductID:         in.ProductID,
		BatchNumber:       in.BatchNumber,
		Quantity:          in.Quantity,
		ManufacturingDate: in.ManufacturingDate,
		ExpirationDate:    in.ExpirationDate,
		LocationID:        in.LocationID,
	}
	if err := uc.repo.InsertBatch(ctx, b); err != nil {
		return nil, err
	}

	// Receiving a lot is a plain stock-in through the engine.
	ref := batchRef(b.ID)
	_, err = uc.engine.MutateStock(ctx, caller, &invdto.MutationRequest{
		ProductID:      in.ProductID,
		LocationID:     in.LocationID,
		QuantityChange: in.Quantity,
		MovementType:   model.MovementStockIn,
		Reason:         fmt.Sprintf("batch %s received", in.BatchNumber),
		OrderItemRef:   &ref,
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (uc *batchUseCase) UpdateBatchQuantity(ctx context.Context, caller scope.CallerScope, batchID string, quantityUsed int64) (*model.InventoryBatch, error) {
	if batchID == "" || quantityUsed <= 0 {
		return nil, domain.ErrInvalidInput
	}

	var b *model.InventoryBatch
	err := uc.repo.InTx(ctx, func(r batch.Repository) error {
		var err error
		b, err = r.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		if !caller.CanAccess(b.OrganizationID) {
			return &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: b.ProductID}
		}
		if b.QuantityUsed+quantityUsed > b.Quantity {
			return &domain.StockError{
				ProductID:  b.ProductID,
				LocationID: b.LocationID,
				Requested:  quantityUsed,
				Available:  b.Quantity - b.QuantityUsed,
			}
		}
		b.QuantityUsed += quantityUsed
		b.UpdatedAt = time.Now().UTC()
		return r.UpdateBatch(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	ref := batchRef(b.ID)
	_, err = uc.engine.MutateStock(ctx, caller, &invdto.MutationRequest{
		ProductID:            b.ProductID,
		LocationID:           b.LocationID,
		QuantityChange:       -quantityUsed,
		MovementType:         model.MovementSale,
		Reason:               fmt.Sprintf("batch %s consumed", b.BatchNumber),
		OrderItemRef:         &ref,
		ValidateAvailability: true,
	})
	if err != nil {
		// The stock deduction did not happen, so the lot bookkeeping above
		// must not stand either.
		uc.restoreBatchUsage(ctx, b.ID, quantityUsed)
		return nil, err
	}

	return b, nil
}

func (uc *batchUseCase) TransferBatch(ctx context.Context, caller scope.CallerScope, batchID, toLocationID string, quantity int64) (*model.InventoryBatch, error) {
	if batchID == "" || toLocationID == "" || quantity <= 0 {
		return nil, domain.ErrInvalidInput
	}

	toLocation, err := uc.repo.GetLocation(ctx, toLocationID)
	if err != nil {
		return nil, err
	}
	if toLocation == nil {
		return nil, fmt.Errorf("location %s: %w", toLocationID, domain.ErrNotFound)
	}
	if !caller.CanAccess(toLocation.OrganizationID) {
		return nil, &domain.ScopeError{OrganizationID: caller.OrganizationID, LocationID: toLocationID}
	}

	var src, dest *model.InventoryBatch
	err = uc.repo.InTx(ctx, func(r batch.Repository) error {
		var err error
		src, err = r.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if src == nil {
			return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		if !caller.CanAccess(src.OrganizationID) {
			return &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: src.ProductID}
		}
		if src.Remaining() < quantity {
			return &domain.StockError{
				ProductID:  src.ProductID,
				LocationID: src.LocationID,
				Requested:  quantity,
				Available:  src.Remaining(),
			}
		}

		now := time.Now().UTC()
		dest = &model.InventoryBatch{
			BaseModel: model.BaseModel{
				ID:        uuid.New().String(),
				CreatedAt: now,
				UpdatedAt: now,
			},
			OrganizationID:    src.OrganizationID,
			ProductID:         src.ProductID,
			BatchNumber:       derivedBatchNumber(src.BatchNumber),
			Quantity:          quantity,
			ManufacturingDate: src.ManufacturingDate,
			ExpirationDate:    src.ExpirationDate,
			LocationID:        toLocationID,
		}
		if err := r.InsertBatch(ctx, dest); err != nil {
			return err
		}

		src.Quantity -= quantity
		src.UpdatedAt = now
		return r.UpdateBatch(ctx, src)
	})
	if err != nil {
		return nil, err
	}

	// Both legs carry the same reference so the ledger ties them to one move.
	ref := batchRef(src.ID)
	from := src.LocationID

	if _, err := uc.engine.MutateStock(ctx, caller, &invdto.MutationRequest{
		ProductID:            src.ProductID,
		LocationID:           src.LocationID,
		QuantityChange:       -quantity,
		MovementType:         model.MovementTransfer,
		Reason:               fmt.Sprintf("batch %s transfer out", src.BatchNumber),
		OrderItemRef:         &ref,
		CreateMovementRecord: true,
		FromLocationID:       &from,
		ToLocationID:         &toLocationID,
		ValidateAvailability: true,
	}); err != nil {
		// No stock moved; the source can hold less than the lot's remaining
		// quantity (holds, other lots), so a valid-looking transfer can still
		// fail here. Undo the lot bookkeeping.
		uc.undoBatchTransfer(ctx, src.ID, dest.ID, quantity)
		return nil, err
	}

	if _, err := uc.engine.MutateStock(ctx, caller, &invdto.MutationRequest{
		ProductID:            src.ProductID,
		LocationID:           toLocationID,
		QuantityChange:       quantity,
		MovementType:         model.MovementTransfer,
		Reason:               fmt.Sprintf("batch %s transfer in", dest.BatchNumber),
		OrderItemRef:         &ref,
		CreateMovementRecord: true,
		FromLocationID:       &from,
		ToLocationID:         &toLocationID,
	}); err != nil {
		// The out leg already committed; post the opposite movement before
		// undoing the lot bookkeeping.
		if _, rerr := uc.engine.MutateStock(ctx, caller, &invdto.MutationRequest{
			ProductID:      src.ProductID,
			LocationID:     src.LocationID,
			QuantityChange: quantity,
			MovementType:   model.MovementTransfer,
			Reason:         fmt.Sprintf("batch %s transfer reversal", src.BatchNumber),
			OrderItemRef:   &ref,
		}); rerr != nil {
			uc.logger.Error("failed to reverse transfer-out leg",
				zap.String("batch_id", src.ID),
				zap.Error(rerr),
			)
		}
		uc.undoBatchTransfer(ctx, src.ID, dest.ID, quantity)
		return nil, err
	}

	return dest, nil
}

// restoreBatchUsage backs out a quantity_used increment whose stock deduction
// failed.
func (uc *batchUseCase) restoreBatchUsage(ctx context.Context, batchID string, quantityUsed int64) {
	err := uc.repo.InTx(ctx, func(r batch.Repository) error {
		b, err := r.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		b.QuantityUsed -= quantityUsed
		if b.QuantityUsed < 0 {
			b.QuantityUsed = 0
		}
		b.UpdatedAt = time.Now().UTC()
		return r.UpdateBatch(ctx, b)
	})
	if err != nil {
		uc.logger.Error("failed to restore batch usage after stock deduction failure",
			zap.String("batch_id", batchID),
			zap.Int64("quantity_used", quantityUsed),
			zap.Error(err),
		)
	}
}

// undoBatchTransfer deletes the destination lot and restores the source
// quantity after a transfer whose stock legs did not complete.
func (uc *batchUseCase) undoBatchTransfer(ctx context.Context, srcID, destID string, quantity int64) {
	err := uc.repo.InTx(ctx, func(r batch.Repository) error {
		src, err := r.GetBatchForUpdate(ctx, srcID)
		if err != nil {
			return err
		}
		if src == nil {
			return fmt.Errorf("batch %s: %w", srcID, domain.ErrNotFound)
		}
		src.Quantity += quantity
		src.UpdatedAt = time.Now().UTC()
		if err := r.UpdateBatch(ctx, src); err != nil {
			return err
		}
		return r.DeleteBatch(ctx, destID)
	})
	if err != nil {
		uc.logger.Error("failed to undo batch transfer after stock move failure",
			zap.String("source_batch_id", srcID),
			zap.String("dest_batch_id", destID),
			zap.Error(err),
		)
	}
}

func (uc *batchUseCase) DeleteBatch(ctx context.Context, caller scope.CallerScope, batchID string) error {
	if batchID == "" {
		return domain.ErrInvalidInput
	}

	return uc.repo.InTx(ctx, func(r batch.Repository) error {
		b, err := r.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		if !caller.CanAccess(b.OrganizationID) {
			return &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: b.ProductID}
		}
		if b.Quantity > 0 {
			return fmt.Errorf("batch %s has quantity %d: %w", b.BatchNumber, b.Quantity, domain.ErrDeleteBlocked)
		}
		serials, err := r.CountSerials(ctx, batchID)
		if err != nil {
			return err
		}
		if serials > 0 {
			return fmt.Errorf("batch %s has %d serial numbers: %w", b.BatchNumber, serials, domain.ErrDeleteBlocked)
		}

		uc.logger.Info("deleting batch",
			zap.String("batch_id", batchID),
			zap.String("batch_number", b.BatchNumber),
		)
		return r.DeleteBatch(ctx, batchID)
	})
}

func (uc *batchUseCase) AddSerialNumbers(ctx context.Context, caller scope.CallerScope, batchID string, serials []string) ([]model.SerialNumber, error) {
	if batchID == "" || len(serials) == 0 {
		return nil, domain.ErrInvalidInput
	}
	for _, s := range serials {
		if s == "" {
			return nil, domain.ErrInvalidInput
		}
	}

	var rows []model.SerialNumber
	err := uc.repo.InTx(ctx, func(r batch.Repository) error {
		b, err := r.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("batch %s: %w", batchID, domain.ErrNotFound)
		}
		if !caller.CanAccess(b.OrganizationID) {
			return &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: b.ProductID}
		}

		existing, err := r.CountSerials(ctx, batchID)
		if err != nil {
			return err
		}
		if int64(existing+len(serials)) > b.Quantity {
			return &domain.StockError{
				ProductID:  b.ProductID,
				LocationID: b.LocationID,
				Requested:  int64(len(serials)),
				Available:  b.Quantity - int64(existing),
			}
		}

		now := time.Now().UTC()
		rows = make([]model.SerialNumber, 0, len(serials))
		for _, s := range serials {
			rows = append(rows, model.SerialNumber{
				ID:             uuid.New().String(),
				OrganizationID: b.OrganizationID,
				ProductID:      b.ProductID,
				BatchID:        &b.ID,
				Serial:         s,
				Status:         model.SerialStatusInStock,
				CreatedAt:      now,
			})
		}
		return r.InsertSerials(ctx, rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (uc *batchUseCase) GetExpiringBatches(ctx context.Context, caller scope.CallerScope, daysAhead int) ([]model.InventoryBatch, error) {
	if daysAhead <= 0 {
		daysAhead = 30
	}
	now := time.Now().UTC()
	org := ""
	if !caller.Privileged {
		org = caller.OrganizationID
	}
	return uc.repo.ListExpiring(ctx, org, now, now.AddDate(0, 0, daysAhead))
}

func (uc *batchUseCase) GetExpiredBatches(ctx context.Context, caller scope.CallerScope) ([]model.InventoryBatch, error) {
	org := ""
	if !caller.Privileged {
		org = caller.OrganizationID
	}
	return uc.repo.ListExpired(ctx, org, time.Now().UTC())
}

// derivedBatchNumber appends a uniqueness suffix to the source lot number for
// the destination side of a transfer.
func derivedBatchNumber(source string) string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s-T%s", source, strings.ToUpper(suffix))
}

func batchRef(batchID string) string {
	return "batch:" + batchID
}
