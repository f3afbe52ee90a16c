package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/domain"
	"github.com/fekuna/omnipos-inventory-service/internal/events"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/scope"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	orgA      = "org-a"
	orgB      = "org-b"
	productID = "prod-1"
	mainLoc   = "loc-main"
	otherLoc  = "loc-other"
)

// fakeRepo is an in-memory inventory.Repository. InTx serializes on a mutex,
// standing in for the row lock the postgres repository takes.
type fakeRepo struct {
	mu           sync.Mutex
	products     map[string]*model.Product
	locations    map[string]*model.Location
	levels       map[string]*model.StockLevel
	transactions []*model.InventoryTransaction
	movements    []*model.InventoryMovement
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: map[string]*model.Product{
			productID: {BaseModel: model.BaseModel{ID: productID}, OrganizationID: orgA, SKU: "SKU-1", Name: "Widget"},
		},
		locations: map[string]*model.Location{
			mainLoc:  {BaseModel: model.BaseModel{ID: mainLoc}, OrganizationID: orgA, Name: "Main"},
			otherLoc: {BaseModel: model.BaseModel{ID: otherLoc}, OrganizationID: orgA, Name: "Other"},
		},
		levels: map[string]*model.StockLevel{},
	}
}

func levelKey(productID string, variantID *string, locationID string) string {
	v := ""
	if variantID != nil {
		v = *variantID
	}
	return strings.Join([]string{productID, v, locationID}, "|")
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(inventory.Repository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

func (f *fakeRepo) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return f.products[id], nil
}

func (f *fakeRepo) GetLocation(ctx context.Context, id string) (*model.Location, error) {
	return f.locations[id], nil
}

func (f *fakeRepo) GetStockLevel(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error) {
	lvl, ok := f.levels[levelKey(productID, variantID, locationID)]
	if !ok {
		return nil, nil
	}
	cp := *lvl
	return &cp, nil
}

func (f *fakeRepo) GetStockLevelForUpdate(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error) {
	return f.GetStockLevel(ctx, productID, variantID, locationID)
}

func (f *fakeRepo) UpsertStockLevel(ctx context.Context, lvl *model.StockLevel) error {
	cp := *lvl
	f.levels[levelKey(lvl.ProductID, lvl.VariantID, lvl.LocationID)] = &cp
	return nil
}

func (f *fakeRepo) ListStockLevels(ctx context.Context, productID string, variantID *string) ([]model.StockLevel, error) {
	out := []model.StockLevel{}
	for _, lvl := range f.levels {
		if lvl.ProductID != productID {
			continue
		}
		if variantID != nil && *variantID != "" && (lvl.VariantID == nil || *lvl.VariantID != *variantID) {
			continue
		}
		out = append(out, *lvl)
	}
	return out, nil
}

func (f *fakeRepo) ListBelowReorderPoint(ctx context.Context, productID string) ([]model.StockLevel, error) {
	out := []model.StockLevel{}
	for _, lvl := range f.levels {
		if lvl.ProductID == productID && lvl.ReorderPoint != nil && lvl.QuantityAvailable <= *lvl.ReorderPoint {
			out = append(out, *lvl)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertTransaction(ctx context.Context, txn *model.InventoryTransaction) error {
	cp := *txn
	f.transactions = append(f.transactions, &cp)
	return nil
}

func (f *fakeRepo) ListTransactions(ctx context.Context, filter *dto.TransactionFilters) ([]model.InventoryTransaction, int, error) {
	out := []model.InventoryTransaction{}
	for _, txn := range f.transactions {
		if txn.ProductID != filter.ProductID {
			continue
		}
		if filter.OrganizationID != "" && txn.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		out = append(out, *txn)
	}
	return out, len(out), nil
}

func (f *fakeRepo) SummarizeTransactions(ctx context.Context, filter *dto.SummaryFilters) ([]dto.TransactionSummaryRow, error) {
	byType := map[string]*dto.TransactionSummaryRow{}
	for _, txn := range f.transactions {
		if filter.ProductID != "" && txn.ProductID != filter.ProductID {
			continue
		}
		row, ok := byType[txn.Type]
		if !ok {
			row = &dto.TransactionSummaryRow{Type: txn.Type}
			byType[txn.Type] = row
		}
		row.TotalChange += txn.QuantityChange
		row.Count++
	}
	out := []dto.TransactionSummaryRow{}
	for _, row := range byType {
		out = append(out, *row)
	}
	return out, nil
}

func (f *fakeRepo) DeleteTransactionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	kept := f.transactions[:0]
	var deleted int64
	for _, txn := range f.transactions {
		if txn.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, txn)
	}
	f.transactions = kept
	return deleted, nil
}

func (f *fakeRepo) InsertMovement(ctx context.Context, m *model.InventoryMovement) error {
	cp := *m
	f.movements = append(f.movements, &cp)
	return nil
}

func (f *fakeRepo) SumAvailableByProduct(ctx context.Context, productID string) (int64, error) {
	var total int64
	for _, lvl := range f.levels {
		if lvl.ProductID == productID {
			total += lvl.QuantityAvailable
		}
	}
	return total, nil
}

func (f *fakeRepo) SetProductTotalStock(ctx context.Context, productID string, total int64) error {
	if p, ok := f.products[productID]; ok {
		p.TotalStock = total
	}
	return nil
}

// fakeLocker always grants; lock contention behavior is covered by the
// serialized InTx.
type fakeLocker struct{}

func (fakeLocker) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (fakeLocker) ReleaseLock(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}

type fakeSink struct {
	mu       sync.Mutex
	payloads []events.StockChangedPayload
}

func (s *fakeSink) StockChanged(ctx context.Context, p events.StockChangedPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
}

func newEngine(repo *fakeRepo) (inventory.UseCase, *fakeSink) {
	sink := &fakeSink{}
	return NewInventoryUseCase(repo, fakeLocker{}, sink, logger.NewNop()), sink
}

func seedLevel(repo *fakeRepo, locationID string, onHand, reserved int64) {
	available := onHand - reserved
	repo.levels[levelKey(productID, nil, locationID)] = &model.StockLevel{
		ID:                "lvl-" + locationID,
		OrganizationID:    orgA,
		ProductID:         productID,
		LocationID:        locationID,
		QuantityOnHand:    onHand,
		QuantityReserved:  reserved,
		QuantityAvailable: available,
	}
}

func orgScope() scope.CallerScope {
	return scope.CallerScope{OrganizationID: orgA, ActorID: "user-1"}
}

func TestMutateStock_StockIn(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 100, 10)
	uc, sink := newEngine(repo)

	res, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:      productID,
		LocationID:     mainLoc,
		QuantityChange: 50,
		MovementType:   model.MovementStockIn,
		Reason:         "restock",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(150), res.StockLevel.QuantityOnHand)
	assert.Equal(t, int64(140), res.StockLevel.QuantityAvailable)
	assert.Equal(t, int64(10), res.StockLevel.QuantityReserved)
	assert.Equal(t, int64(90), res.PreviousAvailable)
	assert.Equal(t, "stock_in", res.Transaction.Type)
	assert.Equal(t, int64(50), res.Transaction.QuantityChange)

	// Rollup and post-commit event fired.
	assert.Equal(t, int64(140), repo.products[productID].TotalStock)
	require.Len(t, sink.payloads, 1)
	assert.Equal(t, int64(140), sink.payloads[0].AvailableQuantity)
	assert.Equal(t, res.Transaction.ID, sink.payloads[0].TransactionID)
}

func TestMutateStock_StockOutValidated(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 100, 10)
	uc, _ := newEngine(repo)

	res, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:            productID,
		LocationID:           mainLoc,
		QuantityChange:       -30,
		MovementType:         model.MovementStockOut,
		ValidateAvailability: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(70), res.StockLevel.QuantityOnHand)
	assert.Equal(t, int64(60), res.StockLevel.QuantityAvailable)
}

func TestMutateStock_InsufficientStock(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 100, 10)
	uc, sink := newEngine(repo)

	_, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:            productID,
		LocationID:           mainLoc,
		QuantityChange:       -100,
		MovementType:         model.MovementStockOut,
		ValidateAvailability: true,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(100), stockErr.Requested)
	assert.Equal(t, int64(90), stockErr.Available)

	// Nothing committed, nothing emitted.
	lvl := repo.levels[levelKey(productID, nil, mainLoc)]
	assert.Equal(t, int64(100), lvl.QuantityOnHand)
	assert.Equal(t, int64(90), lvl.QuantityAvailable)
	assert.Empty(t, repo.transactions)
	assert.Empty(t, sink.payloads)
}

func TestMutateStock_SaleDeductsAvailableDirectly(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 100, 10)
	uc, _ := newEngine(repo)

	res, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:            productID,
		LocationID:           mainLoc,
		QuantityChange:       -5,
		MovementType:         model.MovementSale,
		ValidateAvailability: true,
	})
	require.NoError(t, err)

	// Sales reduce available directly instead of re-deriving it from
	// on-hand minus reserved.
	assert.Equal(t, int64(95), res.StockLevel.QuantityOnHand)
	assert.Equal(t, int64(85), res.StockLevel.QuantityAvailable)
	assert.Equal(t, int64(10), res.StockLevel.QuantityReserved)
}

func TestMutateStock_TypeRemap(t *testing.T) {
	cases := []struct {
		movement model.MovementType
		change   int64
		ledger   string
	}{
		{model.MovementInitial, 10, "stock_in"},
		{model.MovementAdjustment, -3, "adjustment_damage"},
		{model.MovementReturn, 2, "return"},
		{model.MovementDamage, -1, "damage"},
		{model.MovementExpiration, -1, "expiration"},
	}
	for _, c := range cases {
		repo := newFakeRepo()
		seedLevel(repo, mainLoc, 100, 0)
		uc, _ := newEngine(repo)

		res, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
			ProductID:      productID,
			LocationID:     mainLoc,
			QuantityChange: c.change,
			MovementType:   c.movement,
		})
		require.NoError(t, err, "type %s", c.movement)
		assert.Equal(t, c.ledger, res.Transaction.Type, "type %s", c.movement)
		assert.Equal(t, c.change, res.Transaction.QuantityChange, "type %s", c.movement)
	}
}

func TestMutateStock_ScopeViolation(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 100, 0)
	uc, _ := newEngine(repo)

	outsider := scope.CallerScope{OrganizationID: orgB, ActorID: "intruder"}
	_, err := uc.MutateStock(context.Background(), outsider, &dto.MutationRequest{
		ProductID:      productID,
		LocationID:     mainLoc,
		QuantityChange: 5,
		MovementType:   model.MovementStockIn,
	})
	require.ErrorIs(t, err, domain.ErrScopeViolation)

	// A privileged caller skips the ownership check.
	_, err = uc.MutateStock(context.Background(), scope.Admin("root"), &dto.MutationRequest{
		ProductID:      productID,
		LocationID:     mainLoc,
		QuantityChange: 5,
		MovementType:   model.MovementStockIn,
	})
	require.NoError(t, err)
}

func TestMutateStock_UnknownProduct(t *testing.T) {
	repo := newFakeRepo()
	uc, _ := newEngine(repo)

	_, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:      "missing",
		LocationID:     mainLoc,
		QuantityChange: 5,
		MovementType:   model.MovementStockIn,
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMutateStock_CreatesLevelLazily(t *testing.T) {
	repo := newFakeRepo()
	uc, _ := newEngine(repo)

	res, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:      productID,
		LocationID:     mainLoc,
		QuantityChange: 25,
		MovementType:   model.MovementInitial,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(25), res.StockLevel.QuantityOnHand)
	assert.Equal(t, int64(25), res.StockLevel.QuantityAvailable)
	assert.Equal(t, int64(0), res.PreviousAvailable)
	assert.Equal(t, orgA, res.StockLevel.OrganizationID)
	assert.NotEmpty(t, res.StockLevel.ID)
}

func TestMutateStock_ClampsUnderflowToZero(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 20, 0)
	uc, _ := newEngine(repo)

	res, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:      productID,
		LocationID:     mainLoc,
		QuantityChange: -50,
		MovementType:   model.MovementAdjustment,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), res.StockLevel.QuantityOnHand)
	assert.Equal(t, int64(0), res.StockLevel.QuantityAvailable)
	// The ledger still records the full requested delta.
	assert.Equal(t, int64(-50), res.Transaction.QuantityChange)
}

func TestMutateStock_MovementRecord(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 100, 0)
	uc, _ := newEngine(repo)

	from := mainLoc
	_, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:            productID,
		LocationID:           otherLoc,
		QuantityChange:       40,
		MovementType:         model.MovementTransfer,
		CreateMovementRecord: true,
		FromLocationID:       &from,
	})
	require.NoError(t, err)

	require.Len(t, repo.movements, 1)
	mv := repo.movements[0]
	assert.Equal(t, mainLoc, *mv.FromLocationID)
	// ToLocationID defaults to the mutation's location.
	assert.Equal(t, otherLoc, mv.ToLocationID)
	assert.Equal(t, int64(40), mv.Quantity)
	assert.Equal(t, "transfer", mv.MovementType)
}

func TestMutateStock_AggregateAcrossLocations(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 100, 10)
	seedLevel(repo, otherLoc, 30, 0)
	uc, _ := newEngine(repo)

	_, err := uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
		ProductID:      productID,
		LocationID:     mainLoc,
		QuantityChange: 10,
		MovementType:   model.MovementStockIn,
	})
	require.NoError(t, err)

	// 100 available at main after +10, plus 30 at other.
	assert.Equal(t, int64(130), repo.products[productID].TotalStock)
}

func TestMutateStock_ConcurrentValidatedReductions(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 50, 0)
	uc, _ := newEngine(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uc.MutateStock(context.Background(), orgScope(), &dto.MutationRequest{
				ProductID:            productID,
				LocationID:           mainLoc,
				QuantityChange:       -30,
				MovementType:         model.MovementStockOut,
				ValidateAvailability: true,
			})
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, domain.ErrInsufficientStock)
			failed++
		}
	}
	// Together the two reductions exceed availability: exactly one wins.
	assert.Equal(t, 1, failed)

	lvl := repo.levels[levelKey(productID, nil, mainLoc)]
	assert.Equal(t, int64(20), lvl.QuantityOnHand)
	assert.Equal(t, int64(20), lvl.QuantityAvailable)
	require.Len(t, repo.transactions, 1)
}

func TestMutateStock_InvalidInput(t *testing.T) {
	repo := newFakeRepo()
	uc, _ := newEngine(repo)

	cases := []*dto.MutationRequest{
		{ProductID: "", LocationID: mainLoc, QuantityChange: 1, MovementType: model.MovementStockIn},
		{ProductID: productID, LocationID: "", QuantityChange: 1, MovementType: model.MovementStockIn},
		{ProductID: productID, LocationID: mainLoc, QuantityChange: 0, MovementType: model.MovementStockIn},
		{ProductID: productID, LocationID: mainLoc, QuantityChange: 1, MovementType: "bogus"},
	}
	for _, req := range cases {
		_, err := uc.MutateStock(context.Background(), orgScope(), req)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestCheckReorderPoints(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, mainLoc, 5, 0)
	seedLevel(repo, otherLoc, 100, 0)
	rp := int64(10)
	repo.levels[levelKey(productID, nil, mainLoc)].ReorderPoint = &rp
	repo.levels[levelKey(productID, nil, otherLoc)].ReorderPoint = &rp
	uc, _ := newEngine(repo)

	low, err := uc.CheckReorderPoints(context.Background(), orgScope(), productID)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, mainLoc, low[0].LocationID)
}

func TestGetTransactionHistory_ForcesCallerOrganization(t *testing.T) {
	repo := newFakeRepo()
	repo.transactions = []*model.InventoryTransaction{
		{ID: "t1", OrganizationID: orgA, ProductID: productID, Type: "stock_in"},
		{ID: "t2", OrganizationID: orgB, ProductID: productID, Type: "stock_in"},
	}
	uc, _ := newEngine(repo)

	items, total, err := uc.GetTransactionHistory(context.Background(), orgScope(), &dto.TransactionFilters{ProductID: productID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "t1", items[0].ID)
}

func TestPurgeTransactions(t *testing.T) {
	repo := newFakeRepo()
	old := time.Now().UTC().Add(-400 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	repo.transactions = []*model.InventoryTransaction{
		{ID: "old", CreatedAt: old},
		{ID: "recent", CreatedAt: recent},
	}
	uc, _ := newEngine(repo)

	// Non-privileged callers cannot purge.
	_, err := uc.PurgeTransactions(context.Background(), orgScope(), 365*24*time.Hour)
	require.ErrorIs(t, err, domain.ErrScopeViolation)

	deleted, err := uc.PurgeTransactions(context.Background(), scope.Admin("retention-job"), 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	require.Len(t, repo.transactions, 1)
	assert.Equal(t, "recent", repo.transactions[0].ID)
}
