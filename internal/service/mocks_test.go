package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/warestack/lotkeeper/internal/domain"
	"github.com/warestack/lotkeeper/internal/repo"
)

// branchMatches mirrors the null-safe branch comparison used by the SQL layer.
func branchMatches(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Mock TxManager that runs the callback without a real transaction.
type mockTxManager struct{}

func (m *mockTxManager) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

// Mock StockItemRepository for testing
type mockStockItemRepository struct {
	mu     sync.Mutex
	items  map[int64]*domain.StockItem
	nextID int64
}

func newMockStockItemRepository() *mockStockItemRepository {
	return &mockStockItemRepository{
		items:  make(map[int64]*domain.StockItem),
		nextID: 1,
	}
}

func (m *mockStockItemRepository) Create(item *domain.StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item.ID = m.nextID
	m.nextID++
	item.CreatedAt = time.Now()

	copied := *item
	m.items[item.ID] = &copied
	return nil
}

func (m *mockStockItemRepository) GetByID(id int64) (*domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[id]
	if !exists {
		return nil, domain.ErrStockItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (m *mockStockItemRepository) GetByVariant(companyID, variantID int64, branchID *int64) (*domain.StockItem, error) {
	return m.OldestActive(nil, companyID, variantID, branchID)
}

func (m *mockStockItemRepository) OldestActive(tx *sql.Tx, companyID, variantID int64, branchID *int64) (*domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *domain.StockItem
	for _, item := range m.items {
		if item.CompanyID != companyID || item.VariantID != variantID {
			continue
		}
		if !branchMatches(item.BranchID, branchID) || item.IsDeleted() {
			continue
		}
		if oldest == nil || item.ID < oldest.ID {
			oldest = item
		}
	}
	if oldest == nil {
		return nil, domain.ErrStockItemNotFound
	}
	copied := *oldest
	return &copied, nil
}

func (m *mockStockItemRepository) Reserve(tx *sql.Tx, stockItemID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[stockItemID]
	if !exists || item.Available() < quantity {
		return domain.ErrInsufficientStock
	}
	item.ReservedQuantity += quantity
	return nil
}

func (m *mockStockItemRepository) Confirm(tx *sql.Tx, stockItemID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[stockItemID]
	if !exists || item.ReservedQuantity < quantity || item.Quantity < quantity {
		return domain.ErrReservationConfirmFailed
	}
	item.Quantity -= quantity
	item.ReservedQuantity -= quantity
	return nil
}

func (m *mockStockItemRepository) Release(tx *sql.Tx, stockItemID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[stockItemID]
	if !exists {
		return domain.ErrStockItemNotFound
	}
	item.ReservedQuantity -= quantity
	if item.ReservedQuantity < 0 {
		item.ReservedQuantity = 0
	}
	return nil
}

func (m *mockStockItemRepository) Adjust(stockItemID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[stockItemID]
	if !exists {
		return domain.ErrStockItemNotFound
	}
	next := item.Quantity + delta
	if next < 0 || next < item.ReservedQuantity {
		return domain.ErrInsufficientStock
	}
	item.Quantity = next
	return nil
}

// Mock BatchLotRepository for testing
type mockBatchLotRepository struct {
	mu     sync.Mutex
	lots   map[int64]*domain.BatchLot
	nextID int64
}

func newMockBatchLotRepository() *mockBatchLotRepository {
	return &mockBatchLotRepository{
		lots:   make(map[int64]*domain.BatchLot),
		nextID: 1,
	}
}

func (m *mockBatchLotRepository) Create(lot *domain.BatchLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lot.ID = m.nextID
	m.nextID++
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now()
	}

	copied := *lot
	m.lots[lot.ID] = &copied
	return nil
}

func (m *mockBatchLotRepository) GetByID(id int64) (*domain.BatchLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lot, exists := m.lots[id]
	if !exists {
		return nil, sql.ErrNoRows
	}
	copied := *lot
	return &copied, nil
}

func (m *mockBatchLotRepository) ListAvailable(companyID, variantID int64, branchID *int64, strategy domain.PickingStrategy) ([]*domain.BatchLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.BatchLot
	for _, lot := range m.lots {
		if lot.CompanyID != companyID || lot.VariantID != variantID {
			continue
		}
		if !branchMatches(lot.BranchID, branchID) || lot.Quantity <= 0 {
			continue
		}
		copied := *lot
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if strategy == domain.PickingStrategyFEFO {
			switch {
			case a.ExpiryDate == nil && b.ExpiryDate != nil:
				return false
			case a.ExpiryDate != nil && b.ExpiryDate == nil:
				return true
			case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
				return a.ExpiryDate.Before(*b.ExpiryDate)
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return result, nil
}

func (m *mockBatchLotRepository) ListByVariant(companyID, variantID int64, branchID *int64) ([]*domain.BatchLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.BatchLot
	for _, lot := range m.lots {
		if lot.CompanyID == companyID && lot.VariantID == variantID && branchMatches(lot.BranchID, branchID) {
			copied := *lot
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockBatchLotRepository) HasTrackedLots(companyID, variantID int64, branchID *int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lot := range m.lots {
		if lot.CompanyID == companyID && lot.VariantID == variantID && branchMatches(lot.BranchID, branchID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBatchLotRepository) Reserve(tx *sql.Tx, lotID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lot, exists := m.lots[lotID]
	if !exists || lot.Available() < quantity {
		return domain.ErrLotReservationConflict
	}
	lot.ReservedQuantity += quantity
	return nil
}

func (m *mockBatchLotRepository) Confirm(tx *sql.Tx, lotID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lot, exists := m.lots[lotID]
	if !exists || lot.ReservedQuantity < quantity || lot.Quantity < quantity {
		return domain.ErrLotConfirmFailed
	}
	lot.Quantity -= quantity
	lot.ReservedQuantity -= quantity
	return nil
}

func (m *mockBatchLotRepository) Release(tx *sql.Tx, lotID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lot, exists := m.lots[lotID]
	if !exists {
		return sql.ErrNoRows
	}
	lot.ReservedQuantity -= quantity
	if lot.ReservedQuantity < 0 {
		lot.ReservedQuantity = 0
	}
	return nil
}

func (m *mockBatchLotRepository) ExpiringBefore(companyID int64, deadline time.Time) ([]*domain.BatchLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.BatchLot
	for _, lot := range m.lots {
		if lot.CompanyID != companyID || lot.Quantity <= 0 {
			continue
		}
		if lot.ExpiryDate == nil || lot.ExpiryDate.After(deadline) {
			continue
		}
		copied := *lot
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ExpiryDate.Equal(*result[j].ExpiryDate) {
			return result[i].ExpiryDate.Before(*result[j].ExpiryDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *mockBatchLotRepository) RotationCandidates(companyID int64, deadline time.Time) ([]*domain.BatchLot, error) {
	lots, err := m.ExpiringBefore(companyID, deadline)
	if err != nil {
		return nil, err
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].ExpiryDate.Equal(*lots[j].ExpiryDate) {
			return lots[i].ExpiryDate.Before(*lots[j].ExpiryDate)
		}
		if lots[i].Quantity != lots[j].Quantity {
			return lots[i].Quantity > lots[j].Quantity
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, nil
}

// Mock StockReservationRepository for testing
type mockStockReservationRepository struct {
	mu           sync.Mutex
	reservations map[int64]*domain.StockReservation
	lots         []*domain.StockReservationLot
	nextID       int64
	nextLotID    int64
}

func newMockStockReservationRepository() *mockStockReservationRepository {
	return &mockStockReservationRepository{
		reservations: make(map[int64]*domain.StockReservation),
		nextID:       1,
		nextLotID:    1,
	}
}

func (m *mockStockReservationRepository) Create(tx *sql.Tx, reservation *domain.StockReservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservation.ID = m.nextID
	m.nextID++
	reservation.Status = domain.ReservationStatusReserved
	reservation.CreatedAt = time.Now()

	copied := *reservation
	m.reservations[reservation.ID] = &copied
	return nil
}

func (m *mockStockReservationRepository) CreateLots(tx *sql.Tx, lots []*domain.StockReservationLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lot := range lots {
		lot.ID = m.nextLotID
		m.nextLotID++
		copied := *lot
		m.lots = append(m.lots, &copied)
	}
	return nil
}

func (m *mockStockReservationRepository) ListReservedByOrder(tx *sql.Tx, companyID, orderID int64) ([]*domain.StockReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.StockReservation
	for _, r := range m.reservations {
		if r.CompanyID == companyID && r.OrderID == orderID && r.IsReserved() {
			copied := *r
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockStockReservationRepository) LotsByReservation(tx *sql.Tx, reservationID int64) ([]*domain.StockReservationLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.StockReservationLot
	for _, lot := range m.lots {
		if lot.ReservationID == reservationID {
			copied := *lot
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockStockReservationRepository) MarkConfirmed(tx *sql.Tx, reservationID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.reservations[reservationID]
	if !exists || !r.IsReserved() {
		return domain.ErrReservationConfirmFailed
	}
	r.Status = domain.ReservationStatusConfirmed
	r.ConfirmedAt = &at
	return nil
}

func (m *mockStockReservationRepository) MarkReleased(tx *sql.Tx, reservationID int64, status domain.ReservationStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.reservations[reservationID]
	if !exists || !r.IsReserved() {
		return domain.ErrReservationConfirmFailed
	}
	r.Status = status
	r.CanceledAt = &at
	return nil
}

func (m *mockStockReservationRepository) ListExpiredOrders(now time.Time, limit int) ([]repo.ExpiredOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[repo.ExpiredOrder]bool)
	var result []repo.ExpiredOrder
	for _, r := range m.reservations {
		if !r.IsReserved() || !r.IsPastExpiry(now) {
			continue
		}
		key := repo.ExpiredOrder{CompanyID: r.CompanyID, OrderID: r.OrderID}
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, key)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *mockStockReservationRepository) ListByOrder(companyID, orderID int64) ([]*domain.StockReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.StockReservation
	for _, r := range m.reservations {
		if r.CompanyID == companyID && r.OrderID == orderID {
			copied := *r
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Mock CompanySettingsRepository for testing
type mockCompanySettingsRepository struct {
	mu       sync.Mutex
	settings map[int64]*domain.CompanySettings
}

func newMockCompanySettingsRepository() *mockCompanySettingsRepository {
	return &mockCompanySettingsRepository{
		settings: make(map[int64]*domain.CompanySettings),
	}
}

func (m *mockCompanySettingsRepository) Get(companyID int64) (*domain.CompanySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.settings[companyID]
	if !exists {
		return domain.DefaultCompanySettings(companyID), nil
	}
	copied := *s
	return &copied, nil
}

func (m *mockCompanySettingsRepository) Upsert(settings *domain.CompanySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *settings
	copied.UpdatedAt = time.Now()
	m.settings[settings.CompanyID] = &copied
	return nil
}

// Mock StockMovementRepository for testing
type mockStockMovementRepository struct {
	mu        sync.Mutex
	movements []*domain.StockMovement
	nextID    int64
}

func newMockStockMovementRepository() *mockStockMovementRepository {
	return &mockStockMovementRepository{nextID: 1}
}

func (m *mockStockMovementRepository) Insert(tx *sql.Tx, movement *domain.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	movement.ID = m.nextID
	m.nextID++
	movement.CreatedAt = time.Now()

	copied := *movement
	m.movements = append(m.movements, &copied)
	return nil
}

func (m *mockStockMovementRepository) ListByOrder(companyID, orderID int64) ([]*domain.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.StockMovement
	for _, mv := range m.movements {
		if mv.CompanyID == companyID && mv.OrderID != nil && *mv.OrderID == orderID {
			copied := *mv
			result = append(result, &copied)
		}
	}
	return result, nil
}

// Mock ReservationEventPublisher that records published events.
type mockEventPublisher struct {
	mu        sync.Mutex
	reserved  int
	confirmed int
	released  []domain.ReservationStatus
}

func (m *mockEventPublisher) PublishReserved(ctx context.Context, companyID, orderID int64, reservations []*domain.StockReservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved++
	return nil
}

func (m *mockEventPublisher) PublishConfirmed(ctx context.Context, companyID, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmed++
	return nil
}

func (m *mockEventPublisher) PublishReleased(ctx context.Context, companyID, orderID int64, status domain.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, status)
	return nil
}
