package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/payment"
	"github.com/iliyamo/workshop-booking/internal/queue"
	"github.com/iliyamo/workshop-booking/internal/repository"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// fakeLedger mirrors SessionRepo's admission rules in memory.
type fakeLedger struct {
	mu           sync.Mutex
	sessions     map[uint64]*model.Session
	participants map[uint64]map[uint64]bool
	failAdmit    error
}

func newFakeLedger(sessions ...model.Session) *fakeLedger {
	l := &fakeLedger{sessions: map[uint64]*model.Session{}, participants: map[uint64]map[uint64]bool{}}
	for i := range sessions {
		s := sessions[i]
		l.sessions[s.ID] = &s
		l.participants[s.ID] = map[uint64]bool{}
	}
	return l
}

func (l *fakeLedger) seat(sessionID uint64, users ...uint64) {
	for _, u := range users {
		l.participants[sessionID][u] = true
		l.sessions[sessionID].ParticipantCount++
	}
}

func (l *fakeLedger) GetByID(_ context.Context, id uint64) (*model.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (l *fakeLedger) IsRegistered(_ context.Context, sessionID, userID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.participants[sessionID][userID], nil
}

func (l *fakeLedger) AdmitTx(_ context.Context, _ *sql.Tx, sessionID, userID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAdmit != nil {
		return l.failAdmit
	}
	s, ok := l.sessions[sessionID]
	switch {
	case !ok:
		return repository.ErrSessionNotFound
	case l.participants[sessionID][userID]:
		return repository.ErrAlreadyRegistered
	case s.ParticipantCount >= s.Capacity:
		return repository.ErrSessionFull
	}
	l.participants[sessionID][userID] = true
	s.ParticipantCount++
	return nil
}

func (l *fakeLedger) count(sessionID uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.participants[sessionID])
}

type fakeWorkshops map[uint64]*model.Workshop

func (f fakeWorkshops) GetByID(_ context.Context, id uint64) (*model.Workshop, error) {
	w, ok := f[id]
	if !ok {
		return nil, repository.ErrWorkshopNotFound
	}
	return w, nil
}

type fakePurchases struct {
	mu       sync.Mutex
	byRef    map[string]*model.Purchase
	hideFind bool // simulate a concurrent writer committing between find and insert
	findErr  error
}

func newFakePurchases() *fakePurchases { return &fakePurchases{byRef: map[string]*model.Purchase{}} }

func (f *fakePurchases) FindByReference(_ context.Context, ref string) (*model.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.byRef[ref]
	if !ok || f.hideFind {
		return nil, repository.ErrPurchaseNotFound
	}
	return p, nil
}

func (f *fakePurchases) CreateTx(_ context.Context, _ *sql.Tx, p *model.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byRef[p.PaymentRef]; ok {
		return repository.ErrDuplicateReference
	}
	cp := *p
	f.byRef[p.PaymentRef] = &cp
	return nil
}

func (f *fakePurchases) all() []*model.Purchase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Purchase, 0, len(f.byRef))
	for _, p := range f.byRef {
		out = append(out, p)
	}
	return out
}

type fakeIntents struct {
	mu        sync.Mutex
	nextID    uint64
	open      map[string]*model.CheckoutIntent
	released  []uint64
	completed []string
}

func newFakeIntents() *fakeIntents { return &fakeIntents{open: map[string]*model.CheckoutIntent{}} }

func (f *fakeIntents) Claim(_ context.Context, in *model.CheckoutIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := repository.OpenKey(in.UserID, in.SessionID)
	if _, ok := f.open[key]; ok {
		return repository.ErrCheckoutOpen
	}
	f.nextID++
	in.ID = f.nextID
	in.Status = model.CheckoutOpen
	cp := *in
	f.open[key] = &cp
	return nil
}

func (f *fakeIntents) FindOpen(_ context.Context, userID, sessionID uint64) (*model.CheckoutIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.open[repository.OpenKey(userID, sessionID)]
	if !ok {
		return nil, repository.ErrIntentNotFound
	}
	cp := *in
	return &cp, nil
}

func (f *fakeIntents) Attach(_ context.Context, id uint64, providerSessionID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.open {
		if in.ID == id {
			in.ProviderSessionID = providerSessionID
			in.CheckoutURL = url
			return nil
		}
	}
	return repository.ErrIntentNotFound
}

func (f *fakeIntents) Release(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, in := range f.open {
		if in.ID == id {
			delete(f.open, k)
		}
	}
	f.released = append(f.released, id)
	return nil
}

func (f *fakeIntents) CompleteTx(_ context.Context, _ *sql.Tx, providerSessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, providerSessionID)
	for k, in := range f.open {
		if in.ProviderSessionID == providerSessionID {
			delete(f.open, k)
			return true, nil
		}
	}
	return false, nil
}

type fakeUsers map[uint64]*model.User

func (f fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []payment.CheckoutRequest
	err   error
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payment.Checkout{ProviderSessionID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.RegistrationConfirmedEvent
	err    error
}

func (p *fakePublisher) PublishRegistration(_ context.Context, ev queue.RegistrationConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// fakeVerifier accepts only signature "good" and replays a fixed event.
type fakeVerifier struct {
	event *payment.Event
	err   error
}

func (v fakeVerifier) ParseEvent(_ []byte, signature string) (*payment.Event, error) {
	if v.err != nil {
		return nil, v.err
	}
	if signature != "good" {
		return nil, payment.ErrInvalidSignature
	}
	return v.event, nil
}

type fakeDedup struct {
	seen       map[string]bool
	released   []string
	releaseErr []error // ctx.Err() observed by each Release
	err        error
}

func (d *fakeDedup) Claim(_ context.Context, id string) (bool, error) {
	if d.err != nil {
		return true, d.err
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *fakeDedup) Release(ctx context.Context, id string) error {
	d.releaseErr = append(d.releaseErr, ctx.Err())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	delete(d.seen, id)
	d.released = append(d.released, id)
	return nil
}

var errStorage = errors.New("storage unavailable")
