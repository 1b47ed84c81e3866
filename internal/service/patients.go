package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/patient-records/internal/model"
	q "github.com/iliyamo/patient-records/internal/queue"
)

// PatientStore is the record store.
type PatientStore interface {
	Insert(ctx context.Context, f model.PatientFields) (string, error)
	Each(ctx context.Context, fn func(model.Patient) error) error
	List(ctx context.Context) ([]model.Patient, error)
	Get(ctx context.Context, id string) (*model.Patient, error)
	Replace(ctx context.Context, id string, f model.PatientFields) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// PatientService manages patient records and announces their changes.
type PatientService struct {
	store  PatientStore
	events EventPublisher
	logger zerolog.Logger
}

func NewPatientService(store PatientStore, events EventPublisher, logger zerolog.Logger) *PatientService {
	if store == nil {
		panic("nil store passed to NewPatientService")
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &PatientService{store: store, events: events, logger: logger}
}

// List returns every record in store order.
func (s *PatientService) List(ctx context.Context) ([]model.Patient, error) {
	return s.store.List(ctx)
}

// Each streams records in store order without buffering them.  Calling it
// again restarts from the beginning.
func (s *PatientService) Each(ctx context.Context, fn func(model.Patient) error) error {
	return s.store.Each(ctx, fn)
}

// Create stores f verbatim and returns the new record's identifier.
func (s *PatientService) Create(ctx context.Context, actor string, f model.PatientFields) (string, error) {
	id, err := s.store.Insert(ctx, f)
	if err != nil {
		return "", err
	}
	s.publish(ctx, q.PatientCreated, id, actor)
	return id, nil
}

// Get returns one record or repository.ErrNotFound.
func (s *PatientService) Get(ctx context.Context, id string) (*model.Patient, error) {
	return s.store.Get(ctx, id)
}

// Update replaces the whole field set of record id.  An id that matches
// nothing is a silent no-op.
func (s *PatientService) Update(ctx context.Context, actor, id string, f model.PatientFields) error {
	matched, err := s.store.Replace(ctx, id, f)
	if err != nil {
		return err
	}
	if !matched {
		s.logger.Warn().Str("record_id", id).Msg("update matched no patient record")
		return nil
	}
	s.publish(ctx, q.PatientUpdated, id, actor)
	return nil
}

// Delete removes record id.  Deleting a missing record is a no-op.
func (s *PatientService) Delete(ctx context.Context, actor, id string) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		s.logger.Warn().Str("record_id", id).Msg("delete matched no patient record")
		return nil
	}
	s.publish(ctx, q.PatientDeleted, id, actor)
	return nil
}

func (s *PatientService) publish(ctx context.Context, typ, id, actor string) {
	ev := q.PatientEvent{
		Type:       typ,
		RecordID:   id,
		Actor:      actor,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.events.PublishPatientEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("type", typ).Str("record_id", id).Msg("patient event not published")
	}
}
