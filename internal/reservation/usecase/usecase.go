package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/domain"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type reservationUseCase struct {
	repo   reservation.Repository
	ttl    time.Duration
	logger logger.ZapLogger
}

func NewReservationUseCase(repo reservation.Repository, ttl time.Duration, log logger.ZapLogger) reservation.UseCase {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &reservationUseCase{repo: repo, ttl: ttl, logger: log}
}

func (uc *reservationUseCase) Reserve(ctx context.Context, caller scope.CallerScope, in *dto.ReserveInput) (*model.StockReservation, error) {
	if in.ProductID == "" || in.LocationID == "" || in.ReservedForID == "" ||
		in.Quantity <= 0 || !model.ValidReservedForType(in.ReservedForType) {
		return nil, domain.ErrInvalidInput
	}

	var res *model.StockReservation

	err := uc.repo.InTx(ctx, func(r reservation.Repository) error {
		product, err := r.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("product %s: %w", in.ProductID, domain.ErrNotFound)
		}
		location, err := r.GetLocation(ctx, in.LocationID)
		if err != nil {
			return err
		}
		if location == nil {
			return fmt.Errorf("location %s: %w", in.LocationID, domain.ErrNotFound)
		}
		if !caller.CanAccess(product.OrganizationID) || !caller.CanAccess(location.OrganizationID) {
			return &domain.ScopeError{
				OrganizationID: caller.OrganizationID,
				ProductID:      in.ProductID,
				LocationID:     in.LocationID,
			}
		}

		lvl, err := r.GetStockLevelForUpdate(ctx, in.ProductID, in.VariantID, in.LocationID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if lvl == nil {
			lvl = &model.StockLevel{
				ID:             uuid.New().String(),
				OrganizationID: product.OrganizationID,
				ProductID:      in.ProductID,
				VariantID:      in.VariantID,
				LocationID:     in.LocationID,
			}
		}

		if lvl.QuantityAvailable < in.Quantity {
			return &domain.StockError{
				ProductID:  in.ProductID,
				VariantID:  in.VariantID,
				LocationID: in.LocationID,
				Requested:  in.Quantity,
				Available:  lvl.QuantityAvailable,
			}
		}

		res = &model.StockReservation{
			ID:              uuid.New().String(),
			OrganizationID:  product.OrganizationID,
			ProductID:       in.ProductID,
			VariantID:       in.VariantID,
			LocationID:      in.LocationID,
			Quantity:        in.Quantity,
			ReservedForType: in.ReservedForType,
			ReservedForID:   in.ReservedForID,
			Status:          model.ReservationStatusActive,
			ExpiresAt:       now.Add(uc.ttl),
			CreatedAt:       now,
		}
		if err := r.InsertReservation(ctx, res); err != nil {
			return err
		}

		// A hold only moves quantity between the available and reserved
		// pools; on-hand is untouched and no ledger entry is written.
		lvl.QuantityAvailable -= in.Quantity
		lvl.QuantityReserved += in.Quantity
		lvl.UpdatedAt = now
		return r.UpsertStockLevel(ctx, lvl)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (uc *reservationUseCase) Release(ctx context.Context, caller scope.CallerScope, in *dto.ReleaseInput) (int64, error) {
	if in.ProductID == "" || in.LocationID == "" {
		return 0, domain.ErrInvalidInput
	}

	var released int64

	err := uc.repo.InTx(ctx, func(r reservation.Repository) error {
		product, err := r.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("product %s: %w", in.ProductID, domain.ErrNotFound)
		}
		if !caller.CanAccess(product.OrganizationID) {
			return &domain.ScopeError{OrganizationID: caller.OrganizationID, ProductID: in.ProductID}
		}

		holds, err := r.ListActiveForUpdate(ctx, in)
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return nil // nothing held, nothing to do
		}

		ids := make([]string, 0, len(holds))
		var sum int64
		for _, h := range holds {
			ids = append(ids, h.ID)
			sum += h.Quantity
		}
		if err := r.UpdateStatus(ctx, ids, model.ReservationStatusConsumed); err != nil {
			return err
		}

		lvl, err := r.GetStockLevelForUpdate(ctx, in.ProductID, in.VariantID, in.LocationID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if lvl == nil {
			lvl = &model.StockLevel{
				ID:             uuid.New().String(),
				OrganizationID: product.OrganizationID,
				ProductID:      in.ProductID,
				VariantID:      in.VariantID,
				LocationID:     in.LocationID,
			}
		}

		lvl.QuantityReserved -= sum
		if lvl.QuantityReserved < 0 {
			lvl.QuantityReserved = 0
		}
		lvl.QuantityAvailable += sum
		lvl.UpdatedAt = now
		if err := r.UpsertStockLevel(ctx, lvl); err != nil {
			return err
		}

		released = sum
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// ExpireStale returns stale holds to the available pool, one transaction for
// the whole sweep. Runs from the background sweeper.
func (uc *reservationUseCase) ExpireStale(ctx context.Context) (int, error) {
	expired := 0

	err := uc.repo.InTx(ctx, func(r reservation.Repository) error {
		now := time.Now().UTC()
		holds, err := r.ListExpiredForUpdate(ctx, now)
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return nil
		}

		ids := make([]string, 0, len(holds))
		type key struct {
			productID  string
			variantID  string
			locationID string
		}
		sums := map[key]int64{}
		variants := map[key]*string{}
		orgs := map[key]string{}
		for _, h := range holds {
			ids = append(ids, h.ID)
			k := key{productID: h.ProductID, locationID: h.LocationID}
			if h.VariantID != nil {
				k.variantID = *h.VariantID
			}
			sums[k] += h.Quantity
			variants[k] = h.VariantID
			orgs[k] = h.OrganizationID
		}

		if err := r.UpdateStatus(ctx, ids, model.ReservationStatusExpired); err != nil {
			return err
		}

		for k, sum := range sums {
			lvl, err := r.GetStockLevelForUpdate(ctx, k.productID, variants[k], k.locationID)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if lvl == nil {
				lvl = &model.StockLevel{
					ID:             uuid.New().String(),
					OrganizationID: orgs[k],
					ProductID:      k.productID,
					VariantID:      variants[k],
					LocationID:     k.locationID,
				}
			}
			lvl.QuantityReserved -= sum
			if lvl.QuantityReserved < 0 {
				lvl.QuantityReserved = 0
			}
			lvl.QuantityAvailable += sum
			lvl.UpdatedAt = now
			if err := r.UpsertStockLevel(ctx, lvl); err != nil {
				return err
			}
		}

		expired = len(holds)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		uc.logger.Info("expired stale reservations", zap.Int("count", expired))
	}
	return expired, nil
}
