package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/request"
	"parcel-share/pkg/events"
	"parcel-share/pkg/lock"
	"parcel-share/pkg/payment"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ==================== IN-MEMORY STORE ====================

// memDB keeps rows by value so callers never share memory with the store.
type memDB struct {
	mu  sync.Mutex
	now func() time.Time

	users         map[uuid.UUID]entity.User
	sessions      map[uuid.UUID]entity.Session
	payouts       map[uuid.UUID]entity.PayoutAccount
	trips         map[uuid.UUID]entity.Trip
	bookings      map[uuid.UUID]entity.Booking
	events        []entity.BookingEvent
	codes         map[uuid.UUID]entity.VerificationCode
	txns          []entity.Transaction
	escrows       map[uuid.UUID]entity.EscrowAccount
	attempts      []entity.CancellationAttempt
	notifications []entity.Notification
	nextRef       int64

	// failures are one-shot errors keyed by "Repo.Method".
	failures map[string]error
}

func newMemDB(now func() time.Time) *memDB {
	return &memDB{
		now:      now,
		users:    map[uuid.UUID]entity.User{},
		sessions: map[uuid.UUID]entity.Session{},
		payouts:  map[uuid.UUID]entity.PayoutAccount{},
		trips:    map[uuid.UUID]entity.Trip{},
		bookings: map[uuid.UUID]entity.Booking{},
		codes:    map[uuid.UUID]entity.VerificationCode{},
		escrows:  map[uuid.UUID]entity.EscrowAccount{},
		failures: map[string]error{},
	}
}

// failOnce makes the next call of op return err.
func (db *memDB) failOnce(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = err
}

// check must be called with mu held.
func (db *memDB) check(op string) error {
	if err, ok := db.failures[op]; ok {
		delete(db.failures, op)
		return err
	}
	return nil
}

type memSnapshot struct {
	users         map[uuid.UUID]entity.User
	sessions      map[uuid.UUID]entity.Session
	payouts       map[uuid.UUID]entity.PayoutAccount
	trips         map[uuid.UUID]entity.Trip
	bookings      map[uuid.UUID]entity.Booking
	events        []entity.BookingEvent
	codes         map[uuid.UUID]entity.VerificationCode
	txns          []entity.Transaction
	escrows       map[uuid.UUID]entity.EscrowAccount
	attempts      []entity.CancellationAttempt
	notifications []entity.Notification
	nextRef       int64
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice[V any](s []V) []V {
	return append([]V(nil), s...)
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		users:         cloneMap(db.users),
		sessions:      cloneMap(db.sessions),
		payouts:       cloneMap(db.payouts),
		trips:         cloneMap(db.trips),
		bookings:      cloneMap(db.bookings),
		events:        cloneSlice(db.events),
		codes:         cloneMap(db.codes),
		txns:          cloneSlice(db.txns),
		escrows:       cloneMap(db.escrows),
		attempts:      cloneSlice(db.attempts),
		notifications: cloneSlice(db.notifications),
		nextRef:       db.nextRef,
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = s.users
	db.sessions = s.sessions
	db.payouts = s.payouts
	db.trips = s.trips
	db.bookings = s.bookings
	db.events = s.events
	db.codes = s.codes
	db.txns = s.txns
	db.escrows = s.escrows
	db.attempts = s.attempts
	db.notifications = s.notifications
	db.nextRef = s.nextRef
}

// memStore runs transactions one at a time and rolls back by restoring a snapshot.
type memStore struct {
	db   *memDB
	repo *repository.Repository
	txMu sync.Mutex
}

func newMemStore(db *memDB) *memStore {
	return &memStore{
		db: db,
		repo: &repository.Repository{
			User:                &memUserRepo{db},
			Session:             &memSessionRepo{db},
			PayoutAccount:       &memPayoutRepo{db},
			Trip:                &memTripRepo{db},
			Booking:             &memBookingRepo{db},
			VerificationCode:    &memCodeRepo{db},
			Transaction:         &memTxnRepo{db},
			Escrow:              &memEscrowRepo{db},
			CancellationAttempt: &memAttemptRepo{db},
			Notification:        &memNotificationRepo{db},
		},
	}
}

func (s *memStore) Repo() *repository.Repository { return s.repo }

func (s *memStore) WithinTx(_ context.Context, fn func(repo *repository.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.db.snapshot()
	if err := fn(s.repo); err != nil {
		s.db.restore(snap)
		return err
	}
	return nil
}

type memUserRepo struct{ db *memDB }

func (r *memUserRepo) Create(_ context.Context, u *entity.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("User.Create"); err != nil {
		return err
	}
	r.db.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

type memSessionRepo struct{ db *memDB }

func (r *memSessionRepo) Create(_ context.Context, s *entity.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("Session.Create"); err != nil {
		return err
	}
	r.db.sessions[s.Token] = *s
	return nil
}

func (r *memSessionRepo) FindValidSession(_ context.Context, token uuid.UUID) (*entity.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[token]
	if !ok || !s.Active(r.db.now()) {
		return nil, nil
	}
	return &s, nil
}

func (r *memSessionRepo) Revoke(_ context.Context, token uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[token]
	if !ok {
		return nil
	}
	now := r.db.now()
	s.RevokedAt = &now
	r.db.sessions[token] = s
	return nil
}

func (r *memSessionRepo) CleanExpiredSessions(_ context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cutoff := r.db.now().Add(-7 * 24 * time.Hour)
	var n int64
	for k, s := range r.db.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.db.sessions, k)
			n++
		}
	}
	return n, nil
}

type memPayoutRepo struct{ db *memDB }

func (r *memPayoutRepo) Upsert(_ context.Context, a *entity.PayoutAccount) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.payouts[a.UserID] = *a
	return nil
}

func (r *memPayoutRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*entity.PayoutAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.payouts[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memPayoutRepo) UpdateCapabilities(_ context.Context, providerAccountID string, charges, payouts, details bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, a := range r.db.payouts {
		if a.ProviderAccountID == providerAccountID {
			a.ChargesEnabled = charges
			a.PayoutsEnabled = payouts
			a.DetailsSubmitted = details
			r.db.payouts[k] = a
		}
	}
	return nil
}

type memTripRepo struct{ db *memDB }

func (r *memTripRepo) Create(_ context.Context, t *entity.Trip) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.trips[t.ID] = *t
	return nil
}

func (r *memTripRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Trip, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.trips[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTripRepo) FindByTraveler(_ context.Context, travelerID uuid.UUID, limit, offset int) ([]*entity.Trip, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.Trip
	for _, t := range r.db.trips {
		if t.TravelerID == travelerID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureAt.Before(out[j].DepartureAt) })
	return page(out, limit, offset), nil
}

func (r *memTripRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to entity.TripStatus) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.trips[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	r.db.trips[id] = t
	return true, nil
}

type memBookingRepo struct{ db *memDB }

func (r *memBookingRepo) Create(_ context.Context, b *entity.Booking) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("Booking.Create"); err != nil {
		return err
	}
	r.db.nextRef++
	b.Reference = r.db.nextRef
	r.db.bookings[b.ID] = *b
	return nil
}

func (r *memBookingRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memBookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r *memBookingRepo) FindByAuthorizationID(_ context.Context, authorizationID string) (*entity.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, b := range r.db.bookings {
		if b.PaymentAuthorizationID != nil && *b.PaymentAuthorizationID == authorizationID {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *memBookingRepo) FindByParty(_ context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.Booking
	for _, b := range r.db.bookings {
		if b.IsParty(userID) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference > out[j].Reference })
	return page(out, limit, offset), nil
}

func (r *memBookingRepo) CountByParty(_ context.Context, userID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, b := range r.db.bookings {
		if b.IsParty(userID) {
			n++
		}
	}
	return n, nil
}

func (r *memBookingRepo) UpdateTransition(_ context.Context, b *entity.Booking, expected entity.BookingStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("Booking.UpdateTransition"); err != nil {
		return err
	}
	cur, ok := r.db.bookings[b.ID]
	if !ok || cur.Status != expected || cur.StatusVersion != b.StatusVersion {
		return repository.ErrVersionConflict
	}
	b.StatusVersion++
	r.db.bookings[b.ID] = *b
	return nil
}

func (r *memBookingRepo) UpdatePaymentStatus(_ context.Context, authorizationID, paymentStatus string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, b := range r.db.bookings {
		if b.PaymentAuthorizationID != nil && *b.PaymentAuthorizationID == authorizationID {
			s := paymentStatus
			b.PaymentStatus = &s
			r.db.bookings[k] = b
		}
	}
	return nil
}

func (r *memBookingRepo) CountOpenByTrip(_ context.Context, tripID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, b := range r.db.bookings {
		if b.TripID != tripID {
			continue
		}
		switch b.Status {
		case entity.BookingStatusAccepted, entity.BookingStatusPaymentAuthorized, entity.BookingStatusPaymentConfirmed,
			entity.BookingStatusPaid, entity.BookingStatusInTransit, entity.BookingStatusDelivered:
			n++
		}
	}
	return n, nil
}

func (r *memBookingRepo) AppendEvent(_ context.Context, e *entity.BookingEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.events = append(r.db.events, *e)
	return nil
}

func (r *memBookingRepo) ListEvents(_ context.Context, bookingID uuid.UUID) ([]*entity.BookingEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.BookingEvent
	for _, e := range r.db.events {
		if e.BookingID == bookingID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

type memCodeRepo struct{ db *memDB }

func (r *memCodeRepo) Create(_ context.Context, c *entity.VerificationCode) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("VerificationCode.Create"); err != nil {
		return err
	}
	r.db.codes[c.ID] = *c
	return nil
}

func (r *memCodeRepo) FindActive(_ context.Context, bookingID uuid.UUID, codeType entity.CodeType) (*entity.VerificationCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var found *entity.VerificationCode
	for _, c := range r.db.codes {
		if c.BookingID == nil || *c.BookingID != bookingID || c.CodeType != codeType || c.IsUsed || c.InvalidatedAt != nil {
			continue
		}
		if found == nil || c.CreatedAt.After(found.CreatedAt) {
			c := c
			found = &c
		}
	}
	return found, nil
}

func (r *memCodeRepo) CodeInUse(_ context.Context, code string, codeType entity.CodeType) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	for _, c := range r.db.codes {
		if c.Code == code && c.CodeType == codeType && !c.IsUsed && c.InvalidatedAt == nil && c.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCodeRepo) InvalidateActive(_ context.Context, bookingID uuid.UUID, codeType entity.CodeType) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	var n int64
	for k, c := range r.db.codes {
		if c.BookingID != nil && *c.BookingID == bookingID && c.CodeType == codeType && !c.IsUsed && c.InvalidatedAt == nil {
			c.InvalidatedAt = &now
			r.db.codes[k] = c
			n++
		}
	}
	return n, nil
}

func (r *memCodeRepo) IncrementAttempts(_ context.Context, id uuid.UUID) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.codes[id]
	if !ok {
		return 0, fmt.Errorf("code %s not found", id)
	}
	c.Attempts++
	r.db.codes[id] = c
	return c.Attempts, nil
}

func (r *memCodeRepo) MarkUsed(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.codes[id]
	if !ok || c.IsUsed {
		return repository.ErrAlreadyUsed
	}
	now := r.db.now()
	c.IsUsed = true
	c.UsedAt = &now
	r.db.codes[id] = c
	return nil
}

type memTxnRepo struct{ db *memDB }

func (r *memTxnRepo) Create(_ context.Context, t *entity.Transaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("Transaction.Create"); err != nil {
		return err
	}
	r.db.txns = append(r.db.txns, *t)
	return nil
}

func (r *memTxnRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) ([]*entity.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.Transaction
	for _, t := range r.db.txns {
		if t.BookingID == bookingID {
			t := t
			out = append(out, &t)
		}
	}
	return out, nil
}

type memEscrowRepo struct{ db *memDB }

func (r *memEscrowRepo) CreateIfAbsent(_ context.Context, e *entity.EscrowAccount) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.check("Escrow.CreateIfAbsent"); err != nil {
		return false, err
	}
	for _, cur := range r.db.escrows {
		if cur.TransactionID == e.TransactionID {
			return false, nil
		}
	}
	r.db.escrows[e.ID] = *e
	return true, nil
}

func (r *memEscrowRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.EscrowAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.escrows[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memEscrowRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.EscrowAccount, error) {
	return r.FindByID(ctx, id)
}

func (r *memEscrowRepo) FindByTransactionID(_ context.Context, transactionID uuid.UUID) (*entity.EscrowAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, e := range r.db.escrows {
		if e.TransactionID == transactionID {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *memEscrowRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) (*entity.EscrowAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var found *entity.EscrowAccount
	for _, e := range r.db.escrows {
		if e.BookingID != bookingID {
			continue
		}
		if found == nil || e.CreatedAt.After(found.CreatedAt) {
			e := e
			found = &e
		}
	}
	return found, nil
}

func (r *memEscrowRepo) Settle(_ context.Context, e *entity.EscrowAccount) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.escrows[e.ID]
	if !ok || !cur.IsHolding() {
		return repository.ErrNotHolding
	}
	r.db.escrows[e.ID] = *e
	return nil
}

type memAttemptRepo struct{ db *memDB }

func (r *memAttemptRepo) Create(_ context.Context, a *entity.CancellationAttempt) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.attempts = append(r.db.attempts, *a)
	return nil
}

func (r *memAttemptRepo) CountAllowedSince(_ context.Context, actorID uuid.UUID, since time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, a := range r.db.attempts {
		if a.ActorID == actorID && a.Allowed && a.AttemptType != entity.CancellationTypeNoShow && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAttemptRepo) filter(keep func(a entity.CancellationAttempt) bool) []*entity.CancellationAttempt {
	var out []*entity.CancellationAttempt
	for i := len(r.db.attempts) - 1; i >= 0; i-- {
		a := r.db.attempts[i]
		if keep(a) {
			out = append(out, &a)
		}
	}
	return out
}

func (r *memAttemptRepo) FindByActor(_ context.Context, actorID uuid.UUID, limit, offset int) ([]*entity.CancellationAttempt, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := r.filter(func(a entity.CancellationAttempt) bool { return a.ActorID == actorID })
	return page(out, limit, offset), nil
}

func (r *memAttemptRepo) CountByActor(_ context.Context, actorID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.filter(func(a entity.CancellationAttempt) bool { return a.ActorID == actorID }))), nil
}

func (r *memAttemptRepo) FindAll(_ context.Context, severity string, limit, offset int) ([]*entity.CancellationAttempt, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := r.filter(func(a entity.CancellationAttempt) bool { return severity == "" || string(a.Severity) == severity })
	return page(out, limit, offset), nil
}

func (r *memAttemptRepo) CountAll(_ context.Context, severity string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := r.filter(func(a entity.CancellationAttempt) bool { return severity == "" || string(a.Severity) == severity })
	return int64(len(out)), nil
}

type memNotificationRepo struct{ db *memDB }

func (r *memNotificationRepo) Create(_ context.Context, n *entity.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.notifications = append(r.db.notifications, *n)
	return nil
}

func (r *memNotificationRepo) MarkDelivered(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	for i := range r.db.notifications {
		if r.db.notifications[i].ID == id {
			r.db.notifications[i].DeliveredAt = &now
		}
	}
	return nil
}

func (r *memNotificationRepo) FindByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.Notification
	for i := len(r.db.notifications) - 1; i >= 0; i-- {
		n := r.db.notifications[i]
		if n.UserID == userID {
			out = append(out, &n)
		}
	}
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ==================== PAYMENT GATEWAY ====================

type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	auths     map[string]*payment.Authorization
	byKey     map[string]string
	accounts  map[string]*payment.Account
	errs      map[string]error
	calls     map[string]int
	transfers []payment.TransferParams
	refunds   []int64

	// confirmStatus is the status ConfirmAuthorization reports; requires_capture when empty.
	confirmStatus string

	// When gate is set, CreateAuthorization signals entered and blocks until gate is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		auths:    map[string]*payment.Authorization{},
		byKey:    map[string]string{},
		accounts: map[string]*payment.Account{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

// failNext makes the next call of op fail with err.
func (g *fakeGateway) failNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[op] = err
}

func (g *fakeGateway) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) hit(op string) error {
	g.calls[op]++
	if err, ok := g.errs[op]; ok {
		delete(g.errs, op)
		return err
	}
	return nil
}

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *fakeGateway) CreateAuthorization(_ context.Context, p payment.AuthorizationParams) (*payment.Authorization, error) {
	if g.gate != nil {
		g.entered <- struct{}{}
		<-g.gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("create"); err != nil {
		return nil, err
	}
	if id, ok := g.byKey[p.IdempotencyKey]; ok {
		a := *g.auths[id]
		return &a, nil
	}
	a := &payment.Authorization{
		ID:       g.nextID("pi"),
		Status:   "requires_payment_method",
		Amount:   p.Amount,
		Currency: p.Currency,
	}
	g.auths[a.ID] = a
	g.byKey[p.IdempotencyKey] = a.ID
	out := *a
	return &out, nil
}

func (g *fakeGateway) update(op, id string, fn func(a *payment.Authorization)) (*payment.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit(op); err != nil {
		return nil, err
	}
	a, ok := g.auths[id]
	if !ok {
		return nil, &payment.ProviderError{Status: 404, Code: "resource_missing", Message: "no such payment intent"}
	}
	if fn != nil {
		fn(a)
	}
	out := *a
	return &out, nil
}

func (g *fakeGateway) ConfirmAuthorization(_ context.Context, id, _, _ string) (*payment.Authorization, error) {
	return g.update("confirm", id, func(a *payment.Authorization) {
		a.Status = "requires_capture"
		if g.confirmStatus != "" {
			a.Status = g.confirmStatus
		}
		a.AmountCapturable = a.Amount
	})
}

func (g *fakeGateway) CaptureAuthorization(_ context.Context, id string, amount *int64, _ string) (*payment.Authorization, error) {
	return g.update("capture", id, func(a *payment.Authorization) {
		received := a.AmountCapturable
		if amount != nil {
			received = *amount
		}
		a.AmountReceived = received
		a.AmountCapturable = 0
		a.Status = "succeeded"
		a.ChargeID = "ch_" + a.ID
	})
}

func (g *fakeGateway) CancelAuthorization(_ context.Context, id, _, _ string) (*payment.Authorization, error) {
	return g.update("cancel", id, func(a *payment.Authorization) {
		a.Status = "canceled"
		a.AmountCapturable = 0
	})
}

func (g *fakeGateway) GetAuthorization(_ context.Context, id string) (*payment.Authorization, error) {
	return g.update("get", id, nil)
}

// setAuthorization changes the provider side behind the service's back, as a dashboard action would.
func (g *fakeGateway) setAuthorization(id string, fn func(a *payment.Authorization)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.auths[id])
}

func (g *fakeGateway) CreateTransfer(_ context.Context, p payment.TransferParams) (*payment.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("transfer"); err != nil {
		return nil, err
	}
	g.transfers = append(g.transfers, p)
	return &payment.Transfer{
		ID:          g.nextID("tr"),
		Amount:      p.Amount,
		Currency:    p.Currency,
		Destination: p.DestinationAccountID,
	}, nil
}

func (g *fakeGateway) RefundAuthorization(_ context.Context, id string, amount int64, _ string) (*payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("refund"); err != nil {
		return nil, err
	}
	if _, ok := g.auths[id]; !ok {
		return nil, &payment.ProviderError{Status: 404, Code: "resource_missing", Message: "no such payment intent"}
	}
	g.refunds = append(g.refunds, amount)
	return &payment.Refund{ID: g.nextID("re"), Amount: amount, Status: "succeeded"}, nil
}

func (g *fakeGateway) GetAccount(_ context.Context, id string) (*payment.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.hit("account"); err != nil {
		return nil, err
	}
	if a, ok := g.accounts[id]; ok {
		out := *a
		return &out, nil
	}
	return &payment.Account{ID: id, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}, nil
}

// ==================== JOBS AND EVENTS ====================

type fakeJobs struct {
	mu            sync.Mutex
	notifications []NotificationRequest
	reconciles    []ReconcileRequest
	settlements   []uuid.UUID
}

func (j *fakeJobs) EnqueueNotification(_ context.Context, req NotificationRequest) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.notifications = append(j.notifications, req)
	return nil
}

func (j *fakeJobs) EnqueueReconciliation(_ context.Context, req ReconcileRequest) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reconciles = append(j.reconciles, req)
	return nil
}

func (j *fakeJobs) ScheduleSettlement(_ context.Context, bookingID uuid.UUID, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settlements = append(j.settlements, bookingID)
	return nil
}

func (j *fakeJobs) reconcileOps() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var ops []string
	for _, r := range j.reconciles {
		ops = append(ops, r.Operation)
	}
	return ops
}

func (j *fakeJobs) notifiedEvents(userID uuid.UUID) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, n := range j.notifications {
		if n.UserID == userID {
			out = append(out, n.EventType)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.BookingTransitioned
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, evt events.BookingTransitioned) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// ==================== TEST ENV ====================

type testEnv struct {
	t      *testing.T
	now    time.Time
	cfg    *utils.Config
	db     *memDB
	store  *memStore
	gw     *fakeGateway
	jobs   *fakeJobs
	events *fakePublisher
	deps   Deps
	svc    *Service
}

func newTestEnv(t *testing.T, tweaks ...func(cfg *utils.Config)) *testEnv {
	t.Helper()

	cfg := &utils.Config{
		Auth:    utils.AuthConfig{JWTSecret: "test-secret", ExpiryHours: 24},
		Booking: utils.DefaultBookingConfig(),
	}
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	env := &testEnv{
		t:      t,
		now:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		cfg:    cfg,
		gw:     newFakeGateway(),
		jobs:   &fakeJobs{},
		events: &fakePublisher{},
	}
	env.db = newMemDB(env.clock)
	env.store = newMemStore(env.db)
	env.deps = Deps{
		Store:   env.store,
		Gateway: env.gw,
		Locker:  lock.NewLocalLocker(),
		Events:  env.events,
		Jobs:    env.jobs,
		Config:  cfg,
		Log:     zap.NewNop(),
		Now:     env.clock,
	}
	env.svc = NewService(env.deps)
	return env
}

func (e *testEnv) clock() time.Time { return e.now }

func (e *testEnv) user(name string) Actor {
	e.t.Helper()
	u := entity.User{
		Base:     entity.Base{ID: uuid.New(), CreatedAt: e.now, UpdatedAt: e.now},
		Username: name,
		Email:    name + "@example.com",
		Role:     entity.RoleCustomer,
		IsActive: true,
	}
	e.db.mu.Lock()
	e.db.users[u.ID] = u
	e.db.mu.Unlock()
	return Actor{ID: u.ID}
}

func (e *testEnv) admin() Actor {
	a := e.user("admin")
	a.Admin = true
	return a
}

func (e *testEnv) payout(userID uuid.UUID, capable bool) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	e.db.payouts[userID] = entity.PayoutAccount{
		UserID:            userID,
		ProviderAccountID: "acct_" + userID.String()[:8],
		ChargesEnabled:    capable,
		PayoutsEnabled:    capable,
		DetailsSubmitted:  capable,
		CreatedAt:         e.now,
		UpdatedAt:         e.now,
	}
}

func (e *testEnv) trip(traveler Actor, departIn time.Duration) uuid.UUID {
	t := entity.Trip{
		Base:        entity.Base{ID: uuid.New(), CreatedAt: e.now, UpdatedAt: e.now},
		TravelerID:  traveler.ID,
		Origin:      "Lyon",
		Destination: "Madrid",
		DepartureAt: e.now.Add(departIn),
		CapacityKg:  20,
		Status:      entity.TripStatusActive,
	}
	e.db.mu.Lock()
	e.db.trips[t.ID] = t
	e.db.mu.Unlock()
	return t.ID
}

func (e *testEnv) tripStatus(id uuid.UUID) entity.TripStatus {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	return e.db.trips[id].Status
}

func (e *testEnv) booking(id string) entity.Booking {
	e.t.Helper()
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	b, ok := e.db.bookings[uuid.MustParse(id)]
	if !ok {
		e.t.Fatalf("booking %s not stored", id)
	}
	return b
}

func (e *testEnv) escrowOf(id string) *entity.EscrowAccount {
	escrow, _ := e.store.repo.Escrow.FindByBookingID(context.Background(), uuid.MustParse(id))
	return escrow
}

func (e *testEnv) txnTypes(id string) []entity.TransactionType {
	txns, _ := e.store.repo.Transaction.FindByBookingID(context.Background(), uuid.MustParse(id))
	var out []entity.TransactionType
	for _, t := range txns {
		out = append(out, t.Type)
	}
	return out
}

func (e *testEnv) actions(id string) []entity.BookingAction {
	evts, _ := e.store.repo.Booking.ListEvents(context.Background(), uuid.MustParse(id))
	var out []entity.BookingAction
	for _, ev := range evts {
		out = append(out, ev.Action)
	}
	return out
}

func (e *testEnv) activeCode(id string, ct entity.CodeType) string {
	e.t.Helper()
	vc, _ := e.store.repo.VerificationCode.FindActive(context.Background(), uuid.MustParse(id), ct)
	if vc == nil {
		e.t.Fatalf("no active %s for booking %s", ct, id)
	}
	return vc.Code
}

// request creates a pending booking from sender on tripID.
func (e *testEnv) request(sender Actor, tripID uuid.UUID, price float64) string {
	e.t.Helper()
	resp, err := e.svc.Booking.Create(context.Background(), sender, &request.CreateBookingRequest{
		TripID:        tripID.String(),
		WeightKg:      2.5,
		ProposedPrice: price,
	})
	if err != nil {
		e.t.Fatalf("create booking: %v", err)
	}
	return resp.ID
}

// parties seeds a capable carrier, a sender and a trip departing in departIn.
func (e *testEnv) parties(departIn time.Duration) (sender, carrier Actor, tripID uuid.UUID) {
	sender = e.user("sender")
	carrier = e.user("carrier")
	e.payout(carrier.ID, true)
	tripID = e.trip(carrier, departIn)
	return sender, carrier, tripID
}

// advance drives a booking along the happy path from its current status up to to.
func (e *testEnv) advance(id string, sender, carrier Actor, to entity.BookingStatus) {
	e.t.Helper()
	ctx := context.Background()
	steps := []struct {
		reached entity.BookingStatus
		run     func() error
	}{
		{entity.BookingStatusPaymentAuthorized, func() error {
			_, err := e.svc.Booking.Accept(ctx, carrier, id, &request.AcceptBookingRequest{})
			return err
		}},
		{entity.BookingStatusPaid, func() error {
			_, err := e.svc.Booking.ConfirmPayment(ctx, sender, id, &request.ConfirmPaymentRequest{PaymentMethodID: "pm_card_visa"})
			return err
		}},
		{entity.BookingStatusInTransit, func() error {
			code := e.activeCode(id, entity.CodeTypePickup)
			_, err := e.svc.Booking.ValidatePickup(ctx, carrier, id, &request.ValidateCodeRequest{Code: code})
			return err
		}},
		{entity.BookingStatusCompleted, func() error {
			code := e.activeCode(id, entity.CodeTypeDelivery)
			_, err := e.svc.Booking.ValidateDelivery(ctx, sender, id, &request.ValidateCodeRequest{Code: code})
			return err
		}},
	}
	for _, s := range steps {
		current := e.booking(id).Status
		if current == to {
			return
		}
		if current.AtLeast(s.reached) {
			continue
		}
		if err := s.run(); err != nil {
			e.t.Fatalf("advance to %s: %v", s.reached, err)
		}
	}
	if got := e.booking(id).Status; got != to {
		e.t.Fatalf("advance: booking is %s, want %s", got, to)
	}
}

func assertCode(t *testing.T, err error, code utils.ErrorCode) *utils.AppError {
	t.Helper()
	appErr, ok := utils.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError %s, got %v", code, err)
	}
	if appErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
	return appErr
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
