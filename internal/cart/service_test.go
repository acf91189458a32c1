package cart

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/armorylabs/armory-backend/internal/coupons"
	"github.com/armorylabs/armory-backend/internal/products"
	"github.com/armorylabs/armory-backend/pkg/enums"
	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/logger"
)

type memoryStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func newMemoryStore() *memoryStore {
	return &memoryStore{carts: map[string]*Cart{}}
}

func (m *memoryStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.carts[sessionID]; ok {
		clone := *stored
		clone.Items = append([]Item{}, stored.Items...)
		if stored.Coupon != nil {
			c := *stored.Coupon
			clone.Coupon = &c
		}
		return &clone, nil
	}
	return New(sessionID), nil
}

func (m *memoryStore) Save(ctx context.Context, cart *Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *cart
	clone.Items = append([]Item{}, cart.Items...)
	m.carts[cart.SessionID] = &clone
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sessionID)
	return nil
}

type stubCatalog struct {
	tiers map[string]*products.TierDetail
}

func (s *stubCatalog) GetTier(ctx context.Context, productID uuid.UUID, duration string) (*products.TierDetail, error) {
	if tier, ok := s.tiers[productID.String()+"/"+duration]; ok {
		return tier, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product tier not found")
}

type stubValidator struct {
	details *coupons.Details
	err     error
}

func (s *stubValidator) Validate(ctx context.Context, code string) (*coupons.Details, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.details, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cart-test", Output: io.Discard})
}

func newTestService(t *testing.T, catalog *stubCatalog, validator *stubValidator) (Service, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	if validator == nil {
		validator = &stubValidator{}
	}
	svc, err := NewService(store, catalog, validator, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func catalogWith(id uuid.UUID, duration, price string) *stubCatalog {
	return &stubCatalog{tiers: map[string]*products.TierDetail{
		id.String() + "/" + duration: {
			ProductID: id,
			Slug:      "aegis-pro",
			Name:      "Aegis Pro",
			Game:      "Tarkov",
			Duration:  duration,
			PriceUSD:  decimal.RequireFromString(price),
		},
	}}
}

func TestAddItemUsesCatalogPrice(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc, _ := newTestService(t, catalogWith(id, "30d", "10.00"), nil)

	cart, err := svc.AddItem(context.Background(), "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 1})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if !cart.Subtotal().Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("expected subtotal 10.00, got %s", cart.Subtotal())
	}
	if cart.Items[0].Name != "Aegis Pro" {
		t.Fatalf("expected catalog metadata on line, got %+v", cart.Items[0])
	}
}

func TestAddItemUnknownTierFails(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc, store := newTestService(t, catalogWith(id, "30d", "10.00"), nil)

	_, err := svc.AddItem(context.Background(), "sess-1", AddItemInput{ProductID: id, Duration: "90d", Quantity: 1})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	if len(store.carts) != 0 {
		t.Fatalf("failed add must not persist a cart")
	}
}

func TestAddItemMergesAcrossCalls(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc, _ := newTestService(t, catalogWith(id, "30d", "10.00"), nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 1}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 2})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line with qty 3, got %+v", cart.Items)
	}
}

func TestApplyCouponFailureLeavesCartUntouched(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	store := newMemoryStore()
	validator := &stubValidator{err: pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon code is not valid")}
	svc, err := NewService(store, catalogWith(id, "30d", "10.00"), validator, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err = svc.ApplyCoupon(ctx, "sess-1", "BOGUS")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeCouponInvalid {
		t.Fatalf("expected coupon_invalid, got %v", err)
	}

	cart, err := svc.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cart.Coupon != nil {
		t.Fatalf("failed apply must not attach a coupon")
	}
	if !cart.Total().Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("total changed after failed apply: %s", cart.Total())
	}
}

func TestApplyCouponReplacesPrevious(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	store := newMemoryStore()
	validator := &stubValidator{details: &coupons.Details{
		Code:  "SAVE10",
		Type:  enums.CouponTypePercentage,
		Value: decimal.NewFromInt(10),
	}}
	svc, err := NewService(store, catalogWith(id, "30d", "10.00"), validator, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 3}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.ApplyCoupon(ctx, "sess-1", "save10")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cart.Coupon == nil || cart.Coupon.Code != "SAVE10" {
		t.Fatalf("expected SAVE10 applied, got %+v", cart.Coupon)
	}
	if !cart.Discount().Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("expected discount 3.00, got %s", cart.Discount())
	}

	validator.details = &coupons.Details{Code: "FLAT5", Type: enums.CouponTypeFixed, Value: decimal.NewFromInt(5)}
	cart, err = svc.ApplyCoupon(ctx, "sess-1", "FLAT5")
	if err != nil {
		t.Fatalf("apply second: %v", err)
	}
	if cart.Coupon.Code != "FLAT5" {
		t.Fatalf("expected coupon replaced, got %+v", cart.Coupon)
	}
	if !cart.Total().Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("expected total 25.00, got %s", cart.Total())
	}
}

func TestUpdateQuantityMissingLineIsNotFound(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc, _ := newTestService(t, catalogWith(id, "30d", "10.00"), nil)

	_, err := svc.UpdateQuantity(context.Background(), "sess-1", id, "30d", 2)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestClearRemovesItemsAndCoupon(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	store := newMemoryStore()
	validator := &stubValidator{details: &coupons.Details{Code: "SAVE10", Type: enums.CouponTypePercentage, Value: decimal.NewFromInt(10)}}
	svc, err := NewService(store, catalogWith(id, "30d", "10.00"), validator, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.ApplyCoupon(ctx, "sess-1", "SAVE10"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := svc.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	cart, err := svc.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !cart.IsEmpty() || cart.Coupon != nil {
		t.Fatalf("expected pristine cart after clear, got %+v", cart)
	}
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc, _ := newTestService(t, catalogWith(id, "30d", "10.00"), nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}

	snap, err := svc.Snapshot(ctx, "sess-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Total.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("expected snapshot total 20.00, got %s", snap.Total)
	}

	// Mutate the cart after the snapshot; the snapshot must not move.
	if _, err := svc.UpdateQuantity(ctx, "sess-1", id, "30d", 5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !snap.Total.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("snapshot total changed after cart edit: %s", snap.Total)
	}
	if snap.Items[0].Quantity != 2 {
		t.Fatalf("snapshot items changed after cart edit: %+v", snap.Items)
	}
}

func TestSnapshotEmptyCartIsStateConflict(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc, _ := newTestService(t, catalogWith(id, "30d", "10.00"), nil)

	_, err := svc.Snapshot(context.Background(), "sess-1")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConcurrentAddsSerializePerSession(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc, _ := newTestService(t, catalogWith(id, "30d", "10.00"), nil)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, _ = svc.AddItem(ctx, "sess-1", AddItemInput{ProductID: id, Duration: "30d", Quantity: 1})
		}()
	}
	wg.Wait()

	cart, err := svc.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cart.ItemCount() != writers {
		t.Fatalf("lost updates under concurrency: got %d, want %d", cart.ItemCount(), writers)
	}
}
