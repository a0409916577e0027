// Package testutil provides in-memory fakes for the engine's external ports.
package testutil

import (
	"context"
	"sort"
	"sync"

	"idflow/internal/domain"
)

// FakeDirectory is an in-memory DirectoryReader.
type FakeDirectory struct {
	mu         sync.Mutex
	Principals map[string]domain.Principal
}

// NewFakeDirectory creates a directory seeded with the given principals.
func NewFakeDirectory(principals ...domain.Principal) *FakeDirectory {
	d := &FakeDirectory{Principals: make(map[string]domain.Principal)}
	for _, p := range principals {
		d.Principals[p.ID] = p
	}
	return d
}

// Put inserts or replaces a principal.
func (d *FakeDirectory) Put(p domain.Principal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Principals[p.ID] = p
}

func (d *FakeDirectory) GetPrincipal(_ context.Context, id string) (*domain.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.Principals[id]
	if !ok {
		return nil, domain.ErrNotFound("principal %q not found", id)
	}
	return &p, nil
}

func (d *FakeDirectory) ListPrincipals(_ context.Context, filter domain.PrincipalFilter) ([]domain.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Principal, 0, len(d.Principals))
	for _, p := range d.Principals {
		p := p
		if filter.Matches(&p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FakeProvisioner is an in-memory Provisioner that records every call.
// FailAdds and FailRemoves inject errors keyed "principal/group";
// the injected error is returned and then cleared when Once is set.
type FakeProvisioner struct {
	mu    sync.Mutex
	edges map[string]map[string]string // principal → group → source tag

	FailAdds    map[string]error
	FailRemoves map[string]error
	Once        bool

	AddCalls    []domain.MembershipEdge
	RemoveCalls []domain.MembershipEdge
}

// NewFakeProvisioner creates an empty provisioner.
func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{
		edges:       make(map[string]map[string]string),
		FailAdds:    make(map[string]error),
		FailRemoves: make(map[string]error),
	}
}

func pairKey(principalID, groupID string) string { return principalID + "/" + groupID }

// Seed installs an edge without recording a call.
func (f *FakeProvisioner) Seed(principalID, groupID, sourceTag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.edges[principalID] == nil {
		f.edges[principalID] = make(map[string]string)
	}
	f.edges[principalID][groupID] = sourceTag
}

func (f *FakeProvisioner) AddMembership(_ context.Context, principalID, groupID, sourceTag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddCalls = append(f.AddCalls, domain.MembershipEdge{PrincipalID: principalID, GroupID: groupID, SourceTag: sourceTag})
	if err, ok := f.FailAdds[pairKey(principalID, groupID)]; ok {
		if f.Once {
			delete(f.FailAdds, pairKey(principalID, groupID))
		}
		return err
	}
	if f.edges[principalID] == nil {
		f.edges[principalID] = make(map[string]string)
	}
	f.edges[principalID][groupID] = sourceTag
	return nil
}

func (f *FakeProvisioner) RemoveMembership(_ context.Context, principalID, groupID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemoveCalls = append(f.RemoveCalls, domain.MembershipEdge{PrincipalID: principalID, GroupID: groupID})
	if err, ok := f.FailRemoves[pairKey(principalID, groupID)]; ok {
		if f.Once {
			delete(f.FailRemoves, pairKey(principalID, groupID))
		}
		return err
	}
	delete(f.edges[principalID], groupID)
	return nil
}

func (f *FakeProvisioner) ListMemberships(_ context.Context, principalID string) ([]domain.MembershipEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MembershipEdge
	for group, tag := range f.edges[principalID] {
		out = append(out, domain.MembershipEdge{PrincipalID: principalID, GroupID: group, SourceTag: tag})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

// Edges returns the current edge set for a principal, keyed by group ID.
func (f *FakeProvisioner) Edges(principalID string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.edges[principalID]))
	for g, tag := range f.edges[principalID] {
		out[g] = tag
	}
	return out
}

// MemStateRepo is an in-memory StateRepository.
type MemStateRepo struct {
	mu     sync.Mutex
	states map[string]domain.PrincipalState
}

// NewMemStateRepo creates an empty state repository.
func NewMemStateRepo() *MemStateRepo {
	return &MemStateRepo{states: make(map[string]domain.PrincipalState)}
}

func (r *MemStateRepo) Get(_ context.Context, principalID string) (*domain.PrincipalState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[principalID]
	if !ok {
		return nil, domain.ErrNotFound("no state for principal %q", principalID)
	}
	return &s, nil
}

func (r *MemStateRepo) SetStage(_ context.Context, principalID string, stage domain.ExpirationStage, endDate string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.states[principalID]
	s.PrincipalID = principalID
	s.Stage = stage
	s.EndDate = endDate
	r.states[principalID] = s
	return nil
}

func (r *MemStateRepo) SetStatus(_ context.Context, principalID string, status domain.LifecycleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.states[principalID]
	s.PrincipalID = principalID
	s.Status = status
	r.states[principalID] = s
	return nil
}

// MemOutbox is an in-memory OutboxRepository.
type MemOutbox struct {
	mu     sync.Mutex
	events map[string]domain.NotificationEvent
	order  []string
}

// NewMemOutbox creates an empty outbox.
func NewMemOutbox() *MemOutbox {
	return &MemOutbox{events: make(map[string]domain.NotificationEvent)}
}

func (o *MemOutbox) Enqueue(_ context.Context, event domain.NotificationEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	event.Status = domain.DeliveryPending
	o.events[event.ID] = event
	o.order = append(o.order, event.ID)
	return nil
}

func (o *MemOutbox) MarkDelivered(_ context.Context, eventID string, attempts int) error {
	return o.setStatus(eventID, domain.DeliveryDelivered, attempts)
}

func (o *MemOutbox) MarkExhausted(_ context.Context, eventID string, attempts int) error {
	return o.setStatus(eventID, domain.DeliveryFailedExhausted, attempts)
}

func (o *MemOutbox) setStatus(eventID string, status domain.DeliveryStatus, attempts int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ev, ok := o.events[eventID]
	if !ok {
		return domain.ErrNotFound("event %q not found", eventID)
	}
	ev.Status = status
	ev.Attempts = attempts
	o.events[eventID] = ev
	return nil
}

func (o *MemOutbox) ListPending(_ context.Context) ([]domain.NotificationEvent, error) {
	return o.listByStatus(domain.DeliveryPending), nil
}

func (o *MemOutbox) ListExhausted(_ context.Context) ([]domain.NotificationEvent, error) {
	return o.listByStatus(domain.DeliveryFailedExhausted), nil
}

func (o *MemOutbox) listByStatus(status domain.DeliveryStatus) []domain.NotificationEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.NotificationEvent
	for _, id := range o.order {
		if ev := o.events[id]; ev.Status == status {
			out = append(out, ev)
		}
	}
	return out
}

// MemFailureLog is an in-memory FailureRepository.
type MemFailureLog struct {
	mu      sync.Mutex
	records []domain.FailureRecord
}

// NewMemFailureLog creates an empty failure log.
func NewMemFailureLog() *MemFailureLog {
	return &MemFailureLog{}
}

func (l *MemFailureLog) Record(_ context.Context, rec domain.FailureRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *MemFailureLog) List(_ context.Context) ([]domain.FailureRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.FailureRecord, len(l.records))
	copy(out, l.records)
	return out, nil
}

func (l *MemFailureLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	return nil
}
