// Package servicetest provides in-memory implementations of the service
// store interfaces for tests.
package servicetest

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iliyamo/patient-records/internal/model"
	"github.com/iliyamo/patient-records/internal/queue"
	"github.com/iliyamo/patient-records/internal/repository"
)

// Users is an in-memory UserStore with a unique username index.
type Users struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
	// Err, when set, is returned by every call.
	Err error
}

func NewUsers() *Users {
	return &Users{byID: make(map[uint64]*model.User)}
}

func (s *Users) Create(_ context.Context, username, email, passwordHash string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.byID {
		if u.Username == username {
			return nil, repository.ErrDuplicateUsername
		}
	}
	s.nextID++
	u := &model.User{ID: s.nextID, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	s.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Users) GetByID(_ context.Context, id uint64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// Count returns the number of users named username.
func (s *Users) Count(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.byID {
		if u.Username == username {
			n++
		}
	}
	return n
}

// Remove deletes a user row, leaving its sessions orphaned.
func (s *Users) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Sessions is an in-memory SessionStore.
type Sessions struct {
	mu   sync.Mutex
	rows map[string]*model.Session
	Err  error
}

func NewSessions() *Sessions {
	return &Sessions{rows: make(map[string]*model.Session)}
}

func (s *Sessions) Store(_ context.Context, sessionID string, userID uint64, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.rows[sessionID] = &model.Session{ID: sessionID, UserID: userID, ExpiresAt: exp, CreatedAt: time.Now().UTC()}
	return nil
}

func (s *Sessions) Validate(_ context.Context, sessionID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	row, ok := s.rows[sessionID]
	if !ok || row.RevokedAt != nil || time.Now().UTC().After(row.ExpiresAt) {
		return 0, repository.ErrNotFound
	}
	return row.UserID, nil
}

func (s *Sessions) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if row, ok := s.rows[sessionID]; ok && row.RevokedAt == nil {
		now := time.Now().UTC()
		row.RevokedAt = &now
	}
	return nil
}

// Active returns the number of sessions that are not revoked.
func (s *Sessions) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.RevokedAt == nil {
			n++
		}
	}
	return n
}

// Patients is an in-memory PatientStore preserving insertion order.
type Patients struct {
	mu    sync.Mutex
	order []primitive.ObjectID
	docs  map[primitive.ObjectID]model.PatientFields
	Err   error
}

func NewPatients() *Patients {
	return &Patients{docs: make(map[primitive.ObjectID]model.PatientFields)}
}

func (s *Patients) Insert(_ context.Context, f model.PatientFields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	oid := primitive.NewObjectID()
	s.order = append(s.order, oid)
	s.docs[oid] = f
	return oid.Hex(), nil
}

func (s *Patients) Each(ctx context.Context, fn func(model.Patient) error) error {
	all, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range all {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Patients) List(_ context.Context) ([]model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []model.Patient{}
	for _, oid := range s.order {
		if f, ok := s.docs[oid]; ok {
			out = append(out, model.Patient{ID: oid, PatientFields: f})
		}
	}
	return out, nil
}

func (s *Patients) Get(_ context.Context, id string) (*model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	f, ok := s.docs[oid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.Patient{ID: oid, PatientFields: f}, nil
}

func (s *Patients) Replace(_ context.Context, id string, f model.PatientFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	if _, ok := s.docs[oid]; !ok {
		return false, nil
	}
	s.docs[oid] = f
	return true, nil
}

func (s *Patients) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	if _, ok := s.docs[oid]; !ok {
		return false, nil
	}
	delete(s.docs, oid)
	return true, nil
}

// Events records published patient events.
type Events struct {
	mu  sync.Mutex
	evs []queue.PatientEvent
	Err error
}

func (e *Events) PublishPatientEvent(_ context.Context, ev queue.PatientEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.evs = append(e.evs, ev)
	return nil
}

// Types returns the type of every recorded event in publish order.
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.evs))
	for i, ev := range e.evs {
		out[i] = ev.Type
	}
	return out
}

// All returns a copy of the recorded events.
func (e *Events) All() []queue.PatientEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]queue.PatientEvent(nil), e.evs...)
}
