package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/domain"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
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
)

type fakeRepo struct {
	products     map[string]*model.Product
	locations    map[string]*model.Location
	levels       map[string]*model.StockLevel
	reservations map[string]*model.StockReservation
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: map[string]*model.Product{
			productID: {BaseModel: model.BaseModel{ID: productID}, OrganizationID: orgA, SKU: "SKU-1", Name: "Widget"},
		},
		locations: map[string]*model.Location{
			mainLoc: {BaseModel: model.BaseModel{ID: mainLoc}, OrganizationID: orgA, Name: "Main"},
		},
		levels:       map[string]*model.StockLevel{},
		reservations: map[string]*model.StockReservation{},
	}
}

func levelKey(productID string, variantID *string, locationID string) string {
	v := ""
	if variantID != nil {
		v = *variantID
	}
	return strings.Join([]string{productID, v, locationID}, "|")
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(reservation.Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return f.products[id], nil
}

func (f *fakeRepo) GetLocation(ctx context.Context, id string) (*model.Location, error) {
	return f.locations[id], nil
}

func (f *fakeRepo) GetStockLevelForUpdate(ctx context.Context, productID string, variantID *string, locationID string) (*model.StockLevel, error) {
	lvl, ok := f.levels[levelKey(productID, variantID, locationID)]
	if !ok {
		return nil, nil
	}
	cp := *lvl
	return &cp, nil
}

func (f *fakeRepo) UpsertStockLevel(ctx context.Context, lvl *model.StockLevel) error {
	cp := *lvl
	f.levels[levelKey(lvl.ProductID, lvl.VariantID, lvl.LocationID)] = &cp
	return nil
}

func (f *fakeRepo) InsertReservation(ctx context.Context, res *model.StockReservation) error {
	cp := *res
	f.reservations[res.ID] = &cp
	return nil
}

func (f *fakeRepo) ListActiveForUpdate(ctx context.Context, in *dto.ReleaseInput) ([]model.StockReservation, error) {
	out := []model.StockReservation{}
	for _, r := range f.reservations {
		if r.Status != model.ReservationStatusActive {
			continue
		}
		if r.ProductID != in.ProductID || r.LocationID != in.LocationID {
			continue
		}
		if in.ReservedForType != "" && r.ReservedForType != in.ReservedForType {
			continue
		}
		if in.ReservedForID != "" && r.ReservedForID != in.ReservedForID {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRepo) ListExpiredForUpdate(ctx context.Context, now time.Time) ([]model.StockReservation, error) {
	out := []model.StockReservation{}
	for _, r := range f.reservations {
		if r.Status == model.ReservationStatusActive && r.ExpiresAt.Before(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, ids []string, status string) error {
	for _, id := range ids {
		if r, ok := f.reservations[id]; ok {
			r.Status = status
		}
	}
	return nil
}

func seedLevel(repo *fakeRepo, onHand, reserved int64) {
	repo.levels[levelKey(productID, nil, mainLoc)] = &model.StockLevel{
		ID:                "lvl-main",
		OrganizationID:    orgA,
		ProductID:         productID,
		LocationID:        mainLoc,
		QuantityOnHand:    onHand,
		QuantityReserved:  reserved,
		QuantityAvailable: onHand - reserved,
	}
}

func orgScope() scope.CallerScope {
	return scope.CallerScope{OrganizationID: orgA, ActorID: "user-1"}
}

func TestReserveThenRelease_RoundTrip(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, 100, 10)
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	hold, err := uc.Reserve(context.Background(), orgScope(), &dto.ReserveInput{
		ProductID:       productID,
		LocationID:      mainLoc,
		Quantity:        20,
		ReservedForType: model.ReservedForOrder,
		ReservedForID:   "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusActive, hold.Status)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), hold.ExpiresAt, time.Minute)

	lvl := repo.levels[levelKey(productID, nil, mainLoc)]
	assert.Equal(t, int64(100), lvl.QuantityOnHand)
	assert.Equal(t, int64(30), lvl.QuantityReserved)
	assert.Equal(t, int64(70), lvl.QuantityAvailable)

	released, err := uc.Release(context.Background(), orgScope(), &dto.ReleaseInput{
		ProductID:     productID,
		LocationID:    mainLoc,
		ReservedForID: "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), released)

	// Exact round trip back to the starting quantities.
	lvl = repo.levels[levelKey(productID, nil, mainLoc)]
	assert.Equal(t, int64(100), lvl.QuantityOnHand)
	assert.Equal(t, int64(10), lvl.QuantityReserved)
	assert.Equal(t, int64(90), lvl.QuantityAvailable)
	assert.Equal(t, model.ReservationStatusConsumed, repo.reservations[hold.ID].Status)
}

func TestReserve_InsufficientAvailable(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, 100, 90)
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	_, err := uc.Reserve(context.Background(), orgScope(), &dto.ReserveInput{
		ProductID:       productID,
		LocationID:      mainLoc,
		Quantity:        20,
		ReservedForType: model.ReservedForOrder,
		ReservedForID:   "order-1",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(20), stockErr.Requested)
	assert.Equal(t, int64(10), stockErr.Available)
	assert.Empty(t, repo.reservations)
}

func TestReserve_InvalidInput(t *testing.T) {
	repo := newFakeRepo()
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	cases := []*dto.ReserveInput{
		{ProductID: "", LocationID: mainLoc, Quantity: 1, ReservedForType: model.ReservedForOrder, ReservedForID: "o"},
		{ProductID: productID, LocationID: mainLoc, Quantity: 0, ReservedForType: model.ReservedForOrder, ReservedForID: "o"},
		{ProductID: productID, LocationID: mainLoc, Quantity: -5, ReservedForType: model.ReservedForOrder, ReservedForID: "o"},
		{ProductID: productID, LocationID: mainLoc, Quantity: 1, ReservedForType: "warranty", ReservedForID: "o"},
		{ProductID: productID, LocationID: mainLoc, Quantity: 1, ReservedForType: model.ReservedForOrder, ReservedForID: ""},
	}
	for _, in := range cases {
		_, err := uc.Reserve(context.Background(), orgScope(), in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestReserve_ScopeViolation(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, 100, 0)
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	outsider := scope.CallerScope{OrganizationID: orgB, ActorID: "intruder"}
	_, err := uc.Reserve(context.Background(), outsider, &dto.ReserveInput{
		ProductID:       productID,
		LocationID:      mainLoc,
		Quantity:        5,
		ReservedForType: model.ReservedForOrder,
		ReservedForID:   "order-1",
	})
	require.ErrorIs(t, err, domain.ErrScopeViolation)
}

func TestRelease_NoMatchIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, 100, 10)
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	released, err := uc.Release(context.Background(), orgScope(), &dto.ReleaseInput{
		ProductID:     productID,
		LocationID:    mainLoc,
		ReservedForID: "order-does-not-exist",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)

	lvl := repo.levels[levelKey(productID, nil, mainLoc)]
	assert.Equal(t, int64(10), lvl.QuantityReserved)
	assert.Equal(t, int64(90), lvl.QuantityAvailable)
}

func TestRelease_CombinesMatchingHolds(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, 100, 0)
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	for _, qty := range []int64{5, 7} {
		_, err := uc.Reserve(context.Background(), orgScope(), &dto.ReserveInput{
			ProductID:       productID,
			LocationID:      mainLoc,
			Quantity:        qty,
			ReservedForType: model.ReservedForOrder,
			ReservedForID:   "order-1",
		})
		require.NoError(t, err)
	}

	released, err := uc.Release(context.Background(), orgScope(), &dto.ReleaseInput{
		ProductID:       productID,
		LocationID:      mainLoc,
		ReservedForType: model.ReservedForOrder,
		ReservedForID:   "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), released)

	lvl := repo.levels[levelKey(productID, nil, mainLoc)]
	assert.Equal(t, int64(0), lvl.QuantityReserved)
	assert.Equal(t, int64(100), lvl.QuantityAvailable)
}

func TestExpireStale(t *testing.T) {
	repo := newFakeRepo()
	seedLevel(repo, 100, 0)
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	_, err := uc.Reserve(context.Background(), orgScope(), &dto.ReserveInput{
		ProductID:       productID,
		LocationID:      mainLoc,
		Quantity:        15,
		ReservedForType: model.ReservedForOrder,
		ReservedForID:   "order-stale",
	})
	require.NoError(t, err)
	fresh, err := uc.Reserve(context.Background(), orgScope(), &dto.ReserveInput{
		ProductID:       productID,
		LocationID:      mainLoc,
		Quantity:        10,
		ReservedForType: model.ReservedForOrder,
		ReservedForID:   "order-fresh",
	})
	require.NoError(t, err)

	// Backdate the first hold past its expiry.
	for id, r := range repo.reservations {
		if id != fresh.ID {
			r.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		}
	}

	count, err := uc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	lvl := repo.levels[levelKey(productID, nil, mainLoc)]
	assert.Equal(t, int64(10), lvl.QuantityReserved)
	assert.Equal(t, int64(90), lvl.QuantityAvailable)
	assert.Equal(t, model.ReservationStatusActive, repo.reservations[fresh.ID].Status)
}

func TestExpireStale_NothingToDo(t *testing.T) {
	repo := newFakeRepo()
	uc := NewReservationUseCase(repo, time.Hour, logger.NewNop())

	count, err := uc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
