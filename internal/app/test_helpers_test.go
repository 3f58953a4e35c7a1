package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/leasehold/internal/core/escalation"
	"github.com/example/leasehold/internal/ports/secondary"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// overdue returns a deadline that is h hours before testNow.
func overdue(h float64) *time.Time {
	d := testNow.Add(-time.Duration(h * float64(time.Hour)))
	return &d
}

// ============================================================================
// mockTicketRepository
// ============================================================================

// Ensure mockTicketRepository implements the interface
var _ secondary.TicketRepository = (*mockTicketRepository)(nil)

// mockTicketRepository returns every stored ticket ordered by deadline so the
// engine's own eligibility guard is exercised.
type mockTicketRepository struct {
	mu         sync.Mutex
	tickets    map[string]*secondary.TicketRecord
	fetchErr   error
	summaryErr error
	fetches    int
	lastFilter secondary.TicketFilters

	// deadline of the last fetch's context, zero when it had none
	fetchDeadline time.Time
}

func newMockTicketRepository() *mockTicketRepository {
	return &mockTicketRepository{tickets: make(map[string]*secondary.TicketRecord)}
}

func (m *mockTicketRepository) add(id, orgID, propertyID, status string, deadline *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[id] = &secondary.TicketRecord{
		ID:         id,
		OrgID:      orgID,
		PropertyID: propertyID,
		Status:     status,
		Deadline:   deadline,
	}
}

func (m *mockTicketRepository) FetchOpenWithDeadline(ctx context.Context, filters secondary.TicketFilters) ([]*secondary.TicketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	m.lastFilter = filters
	m.fetchDeadline, _ = ctx.Deadline()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	result := make([]*secondary.TicketRecord, 0, len(m.tickets))
	for _, t := range m.tickets {
		copied := *t
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		di, dj := result[i].Deadline, result[j].Deadline
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		case di.Equal(*dj):
			return result[i].ID < result[j].ID
		default:
			return di.Before(*dj)
		}
	})
	if filters.Limit > 0 && len(result) > filters.Limit {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (m *mockTicketRepository) GetByID(ctx context.Context, id string) (*secondary.TicketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tickets[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, fmt.Errorf("ticket %s not found", id)
}

func (m *mockTicketRepository) UpdateEscalationSummary(ctx context.Context, ticketID string, level int, triggeredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summaryErr != nil {
		return m.summaryErr
	}
	t, ok := m.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %s not found", ticketID)
	}
	if level > t.CurrentEscalationLevel {
		t.CurrentEscalationLevel = level
	}
	at := triggeredAt
	t.EscalatedAt = &at
	return nil
}

func (m *mockTicketRepository) ResyncEscalationSummary(ctx context.Context) (int, error) {
	return 0, nil
}

func (m *mockTicketRepository) level(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickets[id].CurrentEscalationLevel
}

// ============================================================================
// mockPolicyRepository
// ============================================================================

// Ensure mockPolicyRepository implements the interface
var _ secondary.PolicyRepository = (*mockPolicyRepository)(nil)

type mockPolicyRepository struct {
	mu       sync.Mutex
	policies map[secondary.PolicyScope][]*secondary.TierRecord
	errs     map[secondary.PolicyScope]error
	calls    map[secondary.PolicyScope]int
}

func newMockPolicyRepository() *mockPolicyRepository {
	return &mockPolicyRepository{
		policies: make(map[secondary.PolicyScope][]*secondary.TierRecord),
		errs:     make(map[secondary.PolicyScope]error),
		calls:    make(map[secondary.PolicyScope]int),
	}
}

func (m *mockPolicyRepository) set(scope secondary.PolicyScope, tiers ...escalation.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*secondary.TierRecord, len(tiers))
	for i, t := range tiers {
		records[i] = &secondary.TierRecord{
			ID:                 fmt.Sprintf("TIER-%d", i+1),
			PropertyID:         scope.PropertyID,
			PlanID:             scope.PlanID,
			Level:              t.Level,
			Role:               t.Role,
			HoursAfterDeadline: t.HoursAfterDeadline,
		}
	}
	m.policies[scope] = records
}

func (m *mockPolicyRepository) FindTiers(ctx context.Context, scope secondary.PolicyScope) ([]*secondary.TierRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[scope]++
	if err := m.errs[scope]; err != nil {
		return nil, err
	}
	return m.policies[scope], nil
}

func (m *mockPolicyRepository) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// ============================================================================
// mockOrgPlanRepository
// ============================================================================

// Ensure mockOrgPlanRepository implements the interface
var _ secondary.OrgPlanRepository = (*mockOrgPlanRepository)(nil)

type mockOrgPlanRepository struct {
	mu          sync.Mutex
	orgPlans    map[string]string // orgID -> plan name
	planIDs     map[string]string // plan name -> plan ID
	orgErrs     map[string]error
	orgLookups  int
	planLookups int
}

func newMockOrgPlanRepository() *mockOrgPlanRepository {
	return &mockOrgPlanRepository{
		orgPlans: make(map[string]string),
		planIDs:  make(map[string]string),
		orgErrs:  make(map[string]error),
	}
}

func (m *mockOrgPlanRepository) PlanNameForOrg(ctx context.Context, orgID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgLookups++
	if err := m.orgErrs[orgID]; err != nil {
		return "", false, err
	}
	name, ok := m.orgPlans[orgID]
	return name, ok, nil
}

func (m *mockOrgPlanRepository) PlanIDForName(ctx context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planLookups++
	id, ok := m.planIDs[name]
	return id, ok, nil
}

func (m *mockOrgPlanRepository) counts() (orgLookups, planLookups int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orgLookups, m.planLookups
}

// ============================================================================
// mockLedger
// ============================================================================

// Ensure mockLedger implements the interface
var _ secondary.EscalationEventRepository = (*mockLedger)(nil)

type ledgerKey struct {
	ticketID string
	level    int
}

// mockLedger is atomic per insert, like the unique index it stands in for.
type mockLedger struct {
	mu        sync.Mutex
	events    map[ledgerKey]*secondary.EscalationEventRecord
	order     []ledgerKey
	insertErr map[string]error // by ticket ID
	attempts  int
	nextID    int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		events:    make(map[ledgerKey]*secondary.EscalationEventRecord),
		insertErr: make(map[string]error),
	}
}

func (m *mockLedger) InsertIfAbsent(ctx context.Context, event *secondary.EscalationEventRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if err := m.insertErr[event.TicketID]; err != nil {
		return false, err
	}
	key := ledgerKey{event.TicketID, event.Level}
	if _, exists := m.events[key]; exists {
		return false, nil
	}
	if event.ID == "" {
		m.nextID++
		event.ID = fmt.Sprintf("ESC-%03d", m.nextID)
	}
	copied := *event
	m.events[key] = &copied
	m.order = append(m.order, key)
	return true, nil
}

func (m *mockLedger) Exists(ctx context.Context, ticketID string, level int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[ledgerKey{ticketID, level}]
	return ok, nil
}

func (m *mockLedger) ListByTicket(ctx context.Context, ticketID string) ([]*secondary.EscalationEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.EscalationEventRecord
	for _, key := range m.order {
		if key.ticketID == ticketID {
			result = append(result, m.events[key])
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Level < result[j].Level })
	return result, nil
}

func (m *mockLedger) MaxLevel(ctx context.Context, ticketID string) (int, error) {
	events, _ := m.ListByTicket(ctx, ticketID)
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Level, nil
}

// levels returns a ticket's levels in the order they were written.
func (m *mockLedger) levels(ticketID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var levels []int
	for _, key := range m.order {
		if key.ticketID == ticketID {
			levels = append(levels, key.level)
		}
	}
	return levels
}

func (m *mockLedger) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// ============================================================================
// mockGateway
// ============================================================================

// Ensure mockGateway implements the interface
var _ secondary.NotificationGateway = (*mockGateway)(nil)

type mockGateway struct {
	mu   sync.Mutex
	sent []secondary.RoleNotification
	err  error
}

func (m *mockGateway) NotifyRole(ctx context.Context, req secondary.RoleNotification) (*secondary.DeliveryReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, req)
	if m.err != nil {
		return nil, m.err
	}
	return &secondary.DeliveryReport{Recipients: 1, Delivered: 1}, nil
}

func (m *mockGateway) notifications() []secondary.RoleNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]secondary.RoleNotification(nil), m.sent...)
}

// ============================================================================
// mockPublisher
// ============================================================================

// Ensure mockPublisher implements the interface
var _ secondary.EventPublisher = (*mockPublisher)(nil)

type mockPublisher struct {
	mu        sync.Mutex
	published []*secondary.EscalationEventRecord
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, event *secondary.EscalationEventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, event)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// ============================================================================
// mockRunLock
// ============================================================================

// Ensure mockRunLock implements the interface
var _ secondary.RunLock = (*mockRunLock)(nil)

type mockRunLock struct {
	held     bool
	err      error
	acquired int
	released int
}

func (m *mockRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	if m.held {
		return nil, false, nil
	}
	m.held = true
	m.acquired++
	return func(context.Context) error {
		m.held = false
		m.released++
		return nil
	}, true, nil
}

// ============================================================================
// test fixture
// ============================================================================

type engineFixture struct {
	tickets   *mockTicketRepository
	policies  *mockPolicyRepository
	orgPlans  *mockOrgPlanRepository
	ledger    *mockLedger
	gateway   *mockGateway
	publisher *mockPublisher
}

func newEngineFixture() *engineFixture {
	return &engineFixture{
		tickets:   newMockTicketRepository(),
		policies:  newMockPolicyRepository(),
		orgPlans:  newMockOrgPlanRepository(),
		ledger:    newMockLedger(),
		gateway:   &mockGateway{},
		publisher: &mockPublisher{},
	}
}

func (f *engineFixture) resolver() *PolicyResolver {
	return NewPolicyResolver(f.policies, f.orgPlans)
}

func (f *engineFixture) executor() *DefaultEffectExecutor {
	return NewEffectExecutor(f.ledger, f.tickets, f.gateway, f.publisher, nil)
}

func (f *engineFixture) engine(cfg EngineConfig, lock secondary.RunLock) *EscalationEngine {
	return NewEscalationEngine(f.tickets, f.resolver(), f.executor(), lock, cfg, nil)
}

func testEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.RunTimeout = 0
	return cfg
}

func ticketID(i int) string {
	return fmt.Sprintf("TKT-%03d", i)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
