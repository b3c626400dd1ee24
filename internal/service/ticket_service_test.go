package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/events"
	"github.com/spec-kit/webdesk/internal/observability"
	"github.com/spec-kit/webdesk/internal/repository"
	apperrors "github.com/spec-kit/webdesk/pkg/util"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store     *repository.MemoryStore
	svc       *TicketService
	clock     *fakeClock
	events    []events.Event
	eventsMu  sync.Mutex
	admin     Actor
	client    Actor
	dev       Actor
	otherDev  Actor
	validator Actor
	otherVal  Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		clock: &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
	}
	f.admin = f.seedUser("admin", domain.UserRoleAdmin)
	f.client = f.seedUser("client", domain.UserRoleClient)
	f.dev = f.seedUser("dev", domain.UserRoleDeveloper)
	f.otherDev = f.seedUser("dev-2", domain.UserRoleDeveloper)
	f.validator = f.seedUser("validator", domain.UserRoleValidator)
	f.otherVal = f.seedUser("validator-2", domain.UserRoleValidator)

	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, func(_ context.Context, e events.Event) error {
		f.eventsMu.Lock()
		defer f.eventsMu.Unlock()
		f.events = append(f.events, e)
		return nil
	})
	f.svc = NewTicketService(TicketDependencies{
		Store:      f.store,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
		Clock:      f.clock.Now,
	})
	return f
}

func (f *fixture) seedUser(id string, role domain.UserRole) Actor {
	f.store.PutUser(domain.User{ID: id, Name: id, Email: id + "@example.com", Role: role, Active: true})
	return Actor{ID: id, Role: role}
}

func (f *fixture) createTicket(t *testing.T, assignee, validator *string) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.CreateTicket(context.Background(), f.client, TicketCreateInput{
		Title:       "Checkout page broken",
		Description: "The pay button does nothing",
		WebID:       "web-1",
		AssignedTo:  assignee,
		ValidatorID: validator,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func (f *fixture) history(t *testing.T, ticketID string) []domain.StatusHistoryEntry {
	t.Helper()
	entries, err := f.svc.ListStatusHistory(context.Background(), f.admin, ticketID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return entries
}

func (f *fixture) workLogs(t *testing.T, ticketID string) []domain.WorkLogEntry {
	t.Helper()
	entries, err := f.svc.ListWorkLogs(context.Background(), f.admin, ticketID)
	if err != nil {
		t.Fatalf("work logs: %v", err)
	}
	return entries
}

func (f *fixture) status(t *testing.T, ticketID string) domain.TicketStatus {
	t.Helper()
	ticket, err := f.svc.GetTicket(context.Background(), f.admin, ticketID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	return ticket.Status
}

func ptr[T any](v T) *T {
	return &v
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))
	if ticket.Status != domain.TicketStatusOpen || ticket.Priority != domain.TicketPriorityMedium {
		t.Fatalf("unexpected defaults: %s/%s", ticket.Status, ticket.Priority)
	}

	f.clock.Set(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))
	started, err := f.svc.StartTicket(ctx, f.dev, ticket.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", started.Status)
	}
	history := f.history(t, ticket.ID)
	if len(history) != 1 || history[0].OldStatus != domain.TicketStatusOpen || history[0].NewStatus != domain.TicketStatusInProgress {
		t.Fatalf("unexpected history after start: %+v", history)
	}
	logs := f.workLogs(t, ticket.ID)
	if len(logs) != 1 || logs[0].Status != domain.WorkLogStatusInProgress || logs[0].FinishedAt != nil {
		t.Fatalf("unexpected work logs after start: %+v", logs)
	}

	f.clock.Set(time.Date(2024, 3, 4, 10, 45, 0, 0, time.UTC))
	if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusInReview {
		t.Fatalf("expected IN_REVIEW, got %s", got)
	}
	logs = f.workLogs(t, ticket.ID)
	if logs[0].Status != domain.WorkLogStatusCompleted || logs[0].FinishedAt == nil {
		t.Fatalf("work log not completed: %+v", logs[0])
	}

	f.clock.Set(time.Date(2024, 3, 4, 10, 50, 0, 0, time.UTC))
	if _, err := f.svc.RejectTicket(ctx, f.validator, ticket.ID, "needs more work"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusRejected {
		t.Fatalf("expected REJECTED, got %s", got)
	}
	logs = f.workLogs(t, ticket.ID)
	if logs[0].Status != domain.WorkLogStatusRejected || logs[0].RejectionReason == nil || *logs[0].RejectionReason != "needs more work" {
		t.Fatalf("work log not rejected: %+v", logs[0])
	}
	history = f.history(t, ticket.ID)
	last := history[len(history)-1]
	if last.OldStatus != domain.TicketStatusInReview || last.NewStatus != domain.TicketStatusRejected || last.ChangedBy != f.validator.ID {
		t.Fatalf("unexpected rejection entry: %+v", last)
	}

	f.clock.Set(time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC))
	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("restart: %v", err)
	}
	f.clock.Set(time.Date(2024, 3, 4, 11, 10, 0, 0, time.UTC))
	if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("second finish: %v", err)
	}

	totals, err := f.svc.GetWorkTotals(ctx, f.admin, ticket.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Attempts != 2 || totals.TotalMinutes != 55 {
		t.Fatalf("expected 55 minutes over 2 attempts, got %+v", totals)
	}

	if _, err := f.svc.ApproveTicket(ctx, f.validator, ticket.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusResolved {
		t.Fatalf("expected RESOLVED, got %s", got)
	}
	if got := len(f.history(t, ticket.ID)); got != 6 {
		t.Fatalf("expected 6 history entries, got %d", got)
	}
}

func TestStartGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), nil)

	_, err := f.svc.StartTicket(ctx, f.otherDev, ticket.ID)
	expectCode(t, err, apperrors.CodeForbidden)

	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = f.svc.StartTicket(ctx, f.dev, ticket.ID)
	expectCode(t, err, apperrors.CodeInvalidTransition)

	if got := len(f.history(t, ticket.ID)); got != 1 {
		t.Fatalf("failed starts must not write history, got %d entries", got)
	}
	if got := len(f.workLogs(t, ticket.ID)); got != 1 {
		t.Fatalf("failed starts must not open work logs, got %d", got)
	}

	_, err = f.svc.StartTicket(ctx, f.dev, "missing")
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestStatusPreconditionsForEveryOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))

	_, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID)
	expectCode(t, err, apperrors.CodeInvalidTransition)
	_, err = f.svc.ApproveTicket(ctx, f.admin, ticket.ID)
	expectCode(t, err, apperrors.CodeInvalidTransition)
	_, err = f.svc.RejectTicket(ctx, f.admin, ticket.ID, "nope")
	expectCode(t, err, apperrors.CodeInvalidTransition)

	if got := f.status(t, ticket.ID); got != domain.TicketStatusOpen {
		t.Fatalf("status changed by failed operations: %s", got)
	}
	if got := len(f.history(t, ticket.ID)); got != 0 {
		t.Fatalf("failed operations wrote %d history entries", got)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))
	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	before := len(f.history(t, ticket.ID))

	for _, reason := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.RejectTicket(ctx, f.validator, ticket.ID, reason)
		expectCode(t, err, apperrors.CodeMissingReason)
	}
	if got := len(f.history(t, ticket.ID)); got != before {
		t.Fatalf("missing reason wrote history: %d -> %d", before, got)
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusInReview {
		t.Fatalf("expected IN_REVIEW, got %s", got)
	}
}

func TestReviewerBinding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	toReview := func(validator *string) *domain.Ticket {
		ticket := f.createTicket(t, ptr(f.dev.ID), validator)
		if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
			t.Fatalf("finish: %v", err)
		}
		return ticket
	}

	bound := toReview(ptr(f.validator.ID))
	_, err := f.svc.ApproveTicket(ctx, f.otherVal, bound.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.svc.RejectTicket(ctx, f.otherVal, bound.ID, "not mine")
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.svc.ApproveTicket(ctx, f.dev, bound.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	if _, err := f.svc.ApproveTicket(ctx, f.admin, bound.ID); err != nil {
		t.Fatalf("admin approve: %v", err)
	}

	unbound := toReview(nil)
	_, err = f.svc.ApproveTicket(ctx, f.client, unbound.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	if _, err := f.svc.ApproveTicket(ctx, f.otherVal, unbound.ID); err != nil {
		t.Fatalf("validator approve of unbound ticket: %v", err)
	}
}

func TestFinishWithoutActiveWorkLogRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), nil)

	// Moved into progress by an admin edit, so no work log was opened.
	if _, err := f.svc.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusInProgress)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	before := len(f.history(t, ticket.ID))

	_, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID)
	expectCode(t, err, apperrors.CodeNotFound)

	if got := f.status(t, ticket.ID); got != domain.TicketStatusInProgress {
		t.Fatalf("status leaked from failed finish: %s", got)
	}
	if got := len(f.history(t, ticket.ID)); got != before {
		t.Fatalf("history leaked from failed finish: %d -> %d", before, got)
	}
}

func TestWorkTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, nil, nil)

	totals, err := f.svc.GetWorkTotals(ctx, f.admin, ticket.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals != (domain.WorkTotals{}) {
		t.Fatalf("expected zero totals, got %+v", totals)
	}

	_, err = f.svc.GetWorkTotals(ctx, f.admin, "missing")
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestSumWorkTotals(t *testing.T) {
	at := func(h, m, s int) time.Time { return time.Date(2024, 1, 1, h, m, s, 0, time.UTC) }
	entries := []domain.WorkLogEntry{
		{StartedAt: at(10, 0, 0), FinishedAt: ptr(at(10, 45, 0))},
		{StartedAt: at(11, 0, 0), FinishedAt: ptr(at(11, 10, 59))},
		{StartedAt: at(12, 0, 0)},
	}
	got := sumWorkTotals(entries)
	if got.TotalMinutes != 55 || got.Attempts != 3 {
		t.Fatalf("expected 55 minutes over 3 attempts, got %+v", got)
	}
}

func TestAssigningClientFailsWithRoleMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), nil)

	_, err := f.svc.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{
		Title:      ptr("renamed"),
		AssignedTo: ptr(f.client.ID),
	})
	expectCode(t, err, apperrors.CodeRoleMismatch)

	got, err := f.svc.GetTicket(ctx, f.admin, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != ticket.Title || !got.IsAssignedTo(f.dev.ID) {
		t.Fatalf("ticket partially updated: %+v", got)
	}

	_, err = f.svc.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{ValidatorID: ptr(f.dev.ID)})
	expectCode(t, err, apperrors.CodeRoleMismatch)
}

func TestCreateValidatesAssignees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	input := TicketCreateInput{Title: "t", Description: "d", WebID: "web-1", AssignedTo: ptr(f.client.ID)}

	_, err := f.svc.CreateTicket(ctx, f.admin, input)
	expectCode(t, err, apperrors.CodeRoleMismatch)

	input.AssignedTo = ptr("ghost")
	_, err = f.svc.CreateTicket(ctx, f.admin, input)
	expectCode(t, err, apperrors.CodeNotFound)

	f.store.PutUser(domain.User{ID: "retired", Role: domain.UserRoleDeveloper, Active: false})
	input.AssignedTo = ptr("retired")
	_, err = f.svc.CreateTicket(ctx, f.admin, input)
	expectCode(t, err, apperrors.CodeNotFound)

	list, err := f.svc.ListTickets(ctx, f.admin, TicketListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected creations must not persist tickets, got %d", len(list))
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateTicket(ctx, f.client, TicketCreateInput{Title: "t"})
	expectCode(t, err, apperrors.CodeValidation)

	_, err = f.svc.CreateTicket(ctx, f.client, TicketCreateInput{Title: "t", Description: "d", WebID: "w", Priority: "URGENT"})
	expectCode(t, err, apperrors.CodeValidation)

	_, err = f.svc.CreateTicket(ctx, f.client, TicketCreateInput{Title: "t", Description: "d", WebID: "w", Status: ptr(domain.TicketStatus("CLOSED"))})
	expectCode(t, err, apperrors.CodeValidation)

	ticket, err := f.svc.CreateTicket(ctx, f.admin, TicketCreateInput{
		Title: "t", Description: "d", WebID: "w",
		Status:    ptr(domain.TicketStatusInReview),
		CreatedBy: f.client.ID,
	})
	if err != nil {
		t.Fatalf("create with override: %v", err)
	}
	if ticket.Status != domain.TicketStatusInReview || ticket.CreatedBy != f.client.ID {
		t.Fatalf("override not applied: %+v", ticket)
	}
	if got := len(f.history(t, ticket.ID)); got != 0 {
		t.Fatalf("creation must not write history, got %d", got)
	}
}

func TestUpdateRecordsStatusChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, nil, nil)

	updated, err := f.svc.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{
		Status:     ptr(domain.TicketStatusResolved),
		Priority:   ptr(domain.TicketPriorityCritical),
		AssignedTo: ptr(f.dev.ID),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.TicketStatusResolved || updated.Priority != domain.TicketPriorityCritical || !updated.IsAssignedTo(f.dev.ID) {
		t.Fatalf("update not applied: %+v", updated)
	}
	history := f.history(t, ticket.ID)
	if len(history) != 1 || history[0].OldStatus != domain.TicketStatusOpen || history[0].ChangedBy != f.admin.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Same status again writes nothing.
	if _, err := f.svc.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusResolved)}); err != nil {
		t.Fatalf("noop update: %v", err)
	}
	if got := len(f.history(t, ticket.ID)); got != 1 {
		t.Fatalf("unchanged status wrote history: %d", got)
	}

	_, err = f.svc.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatus("ARCHIVED"))})
	expectCode(t, err, apperrors.CodeValidation)
	_, err = f.svc.UpdateTicket(ctx, f.admin, "missing", TicketUpdateInput{Title: ptr("x")})
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestConcurrentApproveHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))
	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApproveTicket(ctx, f.validator, ticket.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		expectCode(t, err, apperrors.CodeInvalidTransition)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if got := len(f.history(t, ticket.ID)); got != 3 {
		t.Fatalf("expected 3 history entries, got %d", got)
	}
}

func TestListTicketsIsScopedByRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))
	f.createTicket(t, ptr(f.otherDev.ID), nil)
	if _, err := f.svc.CreateTicket(ctx, f.admin, TicketCreateInput{Title: "t", Description: "d", WebID: "web-2"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		actor Actor
		want  int
	}{
		{f.admin, 3},
		{f.client, 2},
		{f.dev, 1},
		{f.otherDev, 1},
		{f.validator, 1},
		{f.otherVal, 0},
	}
	for _, tc := range cases {
		list, err := f.svc.ListTickets(ctx, tc.actor, TicketListFilter{})
		if err != nil {
			t.Fatalf("list for %s: %v", tc.actor.ID, err)
		}
		if len(list) != tc.want {
			t.Fatalf("%s: expected %d tickets, got %d", tc.actor.ID, tc.want, len(list))
		}
	}

	list, err := f.svc.ListTickets(ctx, f.admin, TicketListFilter{WebID: ptr("web-2")})
	if err != nil || len(list) != 1 {
		t.Fatalf("web filter: %d tickets, err %v", len(list), err)
	}
}

func TestDeleteTicketHidesItAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, nil, nil)

	if err := f.svc.DeleteTicket(ctx, f.admin, ticket.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := f.svc.GetTicket(ctx, f.admin, ticket.ID)
	expectCode(t, err, apperrors.CodeNotFound)
	_, err = f.svc.StartTicket(ctx, f.dev, ticket.ID)
	expectCode(t, err, apperrors.CodeNotFound)
	expectCode(t, f.svc.DeleteTicket(ctx, f.admin, ticket.ID), apperrors.CodeNotFound)

	last := f.events[len(f.events)-1]
	if last.Type != events.EventTicketDeleted || last.TicketID != ticket.ID || last.ID == "" {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestEventsFollowCommittedTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), nil)
	if _, err := f.svc.StartTicket(ctx, f.otherDev, ticket.ID); err == nil {
		t.Fatalf("expected forbidden start")
	}
	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	types := []events.EventType{}
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	want := []events.EventType{events.EventTicketCreated, events.EventTicketAssigned, events.EventTicketStatusChanged}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
	payload, ok := f.events[2].Payload.(events.TicketStatusChangedPayload)
	if !ok || payload.Operation != "start" || payload.OldStatus != domain.TicketStatusOpen {
		t.Fatalf("unexpected payload %+v", f.events[2].Payload)
	}
}

func TestStatsScopedToCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))
	f.createTicket(t, nil, nil)
	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	stats, err := f.svc.Stats(ctx, f.validator)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.InReview != 1 || stats.Open != 1 || stats.Unassigned != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.PendingReview == nil || *stats.PendingReview != 1 {
		t.Fatalf("expected one pending review, got %+v", stats.PendingReview)
	}
	stats, _ = f.svc.Stats(ctx, f.admin)
	if stats.MyTickets != nil || stats.PendingReview != nil {
		t.Fatalf("admin stats should carry no scoped counters")
	}
}

func TestLifecycleTable(t *testing.T) {
	cases := []struct {
		op     operation
		status domain.TicketStatus
		want   bool
	}{
		{opStart, domain.TicketStatusOpen, true},
		{opStart, domain.TicketStatusRejected, true},
		{opStart, domain.TicketStatusResolved, false},
		{opFinish, domain.TicketStatusInProgress, true},
		{opFinish, domain.TicketStatusOpen, false},
		{opApprove, domain.TicketStatusInReview, true},
		{opReject, domain.TicketStatusOpen, false},
	}
	for _, tc := range cases {
		if got := lifecycle[tc.op].allows(tc.status); got != tc.want {
			t.Fatalf("%s from %s = %v, want %v", tc.op, tc.status, got, tc.want)
		}
	}
	if _, ok := lifecycle[operation("close")]; ok {
		t.Fatalf("unexpected close operation")
	}
}

func TestRestartAfterAdminReopenResumesOpenAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), nil)

	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.UpdateTicket(ctx, f.admin, ticket.ID, TicketUpdateInput{Status: ptr(domain.TicketStatusOpen)}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("second start: %v", err)
	}

	logs := f.workLogs(t, ticket.ID)
	if len(logs) != 1 || logs[0].Status != domain.WorkLogStatusInProgress {
		t.Fatalf("expected the open attempt to be resumed, got %+v", logs)
	}
	if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if logs = f.workLogs(t, ticket.ID); logs[0].Status != domain.WorkLogStatusCompleted {
		t.Fatalf("resumed attempt not completed: %+v", logs[0])
	}
}

func TestReviewsFollowApproveAndReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ticket := f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))

	work := func() {
		t.Helper()
		if _, err := f.svc.StartTicket(ctx, f.dev, ticket.ID); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := f.svc.FinishTicket(ctx, f.dev, ticket.ID); err != nil {
			t.Fatalf("finish: %v", err)
		}
	}

	work()
	f.clock.Set(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	if _, err := f.svc.RejectTicket(ctx, f.validator, ticket.ID, "missing tests"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	work()
	f.clock.Set(time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC))
	if _, err := f.svc.ApproveTicket(ctx, f.validator, ticket.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	reviews, err := f.svc.ListReviews(ctx, f.client, ticket.ID)
	if err != nil {
		t.Fatalf("reviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(reviews))
	}
	first, second := reviews[0], reviews[1]
	if first.Status != domain.ReviewStatusChangesRequested || first.Comment == nil || *first.Comment != "missing tests" || first.ReviewerID != f.validator.ID {
		t.Fatalf("unexpected rejection review %+v", first)
	}
	if second.Status != domain.ReviewStatusApproved || second.Comment != nil {
		t.Fatalf("unexpected approval review %+v", second)
	}
}

func TestFailedRejectLeavesNoReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Put straight into review, so no completed attempt exists.
	ticket, err := f.svc.CreateTicket(ctx, f.admin, TicketCreateInput{
		Title: "t", Description: "d", WebID: "web-1",
		Status:      ptr(domain.TicketStatusInReview),
		AssignedTo:  ptr(f.dev.ID),
		ValidatorID: ptr(f.validator.ID),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.RejectTicket(ctx, f.validator, ticket.ID, "wrong fix")
	expectCode(t, err, apperrors.CodeNotFound)

	reviews, err := f.svc.ListReviews(ctx, f.admin, ticket.ID)
	if err != nil {
		t.Fatalf("reviews: %v", err)
	}
	if len(reviews) != 0 {
		t.Fatalf("rolled back reject left %d reviews", len(reviews))
	}
	if got := f.status(t, ticket.ID); got != domain.TicketStatusInReview {
		t.Fatalf("status leaked from failed reject: %s", got)
	}
}

func TestTicketReadsAreScopedToCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bound := f.createTicket(t, ptr(f.dev.ID), ptr(f.validator.ID))
	unbound := f.createTicket(t, ptr(f.dev.ID), nil)
	outsider := f.seedUser("client-2", domain.UserRoleClient)

	for _, actor := range []Actor{f.admin, f.client, f.dev, f.validator} {
		if _, err := f.svc.GetTicket(ctx, actor, bound.ID); err != nil {
			t.Fatalf("%s should see the ticket: %v", actor.ID, err)
		}
	}
	for _, actor := range []Actor{outsider, f.otherDev, f.otherVal} {
		_, err := f.svc.GetTicket(ctx, actor, bound.ID)
		expectCode(t, err, apperrors.CodeNotFound)
		_, err = f.svc.ListStatusHistory(ctx, actor, bound.ID)
		expectCode(t, err, apperrors.CodeNotFound)
		_, err = f.svc.ListWorkLogs(ctx, actor, bound.ID)
		expectCode(t, err, apperrors.CodeNotFound)
		_, err = f.svc.GetWorkTotals(ctx, actor, bound.ID)
		expectCode(t, err, apperrors.CodeNotFound)
		_, err = f.svc.ListReviews(ctx, actor, bound.ID)
		expectCode(t, err, apperrors.CodeNotFound)
	}

	if _, err := f.svc.GetTicket(ctx, f.otherVal, unbound.ID); err != nil {
		t.Fatalf("any validator may read an unbound ticket: %v", err)
	}
}
