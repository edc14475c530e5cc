// Package memory provides in-memory repository implementations used by unit
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diarisk/health-api/internal/model"
	"github.com/diarisk/health-api/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*model.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]*model.User)}
}

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *UserRepository) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *UserRepository) List(_ context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *UserRepository) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Status = status
	return nil
}

func (r *UserRepository) SetMFASecret(_ context.Context, id uuid.UUID, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.MFASecret = &secret
	u.MFAEnabled = false
	return nil
}

func (r *UserRepository) EnableMFA(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if u.MFASecret == nil || u.MFAEnabled {
		return false, nil
	}
	u.MFAEnabled = true
	return true, nil
}

func (r *UserRepository) ClearMFA(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.MFASecret = nil
	u.MFAEnabled = false
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type MeasurementRepository struct {
	mu           sync.RWMutex
	measurements []*model.Measurement
}

func NewMeasurementRepository() *MeasurementRepository {
	return &MeasurementRepository{}
}

func (r *MeasurementRepository) Create(_ context.Context, m *model.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	cp := *m
	r.measurements = append(r.measurements, &cp)
	return nil
}

func (r *MeasurementRepository) AttachPrediction(_ context.Context, id uuid.UUID, protected string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.measurements {
		if m.ID == id {
			p := protected
			m.Prediction = &p
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *MeasurementRepository) ListByOwner(_ context.Context, ownerID uuid.UUID, dr model.DateRange) ([]*model.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Measurement
	for _, m := range r.measurements {
		if m.OwnerID == ownerID && inRange(m.CreatedAt, dr) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MeasurementRepository) ScanByRange(_ context.Context, dr model.DateRange, fn func(*model.Measurement) error) error {
	r.mu.RLock()
	matched := make([]*model.Measurement, 0)
	for _, m := range r.measurements {
		if inRange(m.CreatedAt, dr) {
			cp := *m
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	for _, m := range matched {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *MeasurementRepository) DistinctOwners(_ context.Context, dr model.DateRange) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, m := range r.measurements {
		if !inRange(m.CreatedAt, dr) {
			continue
		}
		if _, ok := seen[m.OwnerID]; ok {
			continue
		}
		seen[m.OwnerID] = struct{}{}
		out = append(out, m.OwnerID)
	}
	return out, nil
}

func (r *MeasurementRepository) DeleteByOwner(_ context.Context, ownerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.measurements[:0]
	for _, m := range r.measurements {
		if m.OwnerID != ownerID {
			kept = append(kept, m)
		}
	}
	r.measurements = kept
	return nil
}

type PrescriptionRepository struct {
	mu            sync.RWMutex
	prescriptions []*model.Prescription
}

func NewPrescriptionRepository() *PrescriptionRepository {
	return &PrescriptionRepository{}
}

func (r *PrescriptionRepository) Create(_ context.Context, p *model.Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	r.prescriptions = append(r.prescriptions, &cp)
	return nil
}

func (r *PrescriptionRepository) ListBySubject(_ context.Context, subjectID uuid.UUID, dr model.DateRange) ([]*model.Prescription, error) {
	return r.list(func(p *model.Prescription) bool { return p.SubjectID == subjectID && inRange(p.CreatedAt, dr) })
}

func (r *PrescriptionRepository) ListByAuthor(_ context.Context, authorID uuid.UUID, dr model.DateRange) ([]*model.Prescription, error) {
	return r.list(func(p *model.Prescription) bool { return p.AuthorID == authorID && inRange(p.CreatedAt, dr) })
}

func (r *PrescriptionRepository) list(keep func(*model.Prescription) bool) ([]*model.Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Prescription
	for _, p := range r.prescriptions {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *PrescriptionRepository) DeleteBySubject(_ context.Context, subjectID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.prescriptions[:0]
	for _, p := range r.prescriptions {
		if p.SubjectID != subjectID {
			kept = append(kept, p)
		}
	}
	r.prescriptions = kept
	return nil
}

type ActionHistoryRepository struct {
	mu      sync.RWMutex
	entries []*model.ActionHistoryEntry
}

func NewActionHistoryRepository() *ActionHistoryRepository {
	return &ActionHistoryRepository{}
}

func (r *ActionHistoryRepository) Create(_ context.Context, entry *model.ActionHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *ActionHistoryRepository) List(_ context.Context, limit int) ([]*model.ActionHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.ActionHistoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type OutboxRepository struct {
	mu     sync.RWMutex
	events []*model.OutboxEvent
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

func (r *OutboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now().UTC()
	cp := *event
	r.events = append(r.events, &cp)
	return nil
}

func (r *OutboxRepository) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.OutboxEvent
	for _, e := range r.events {
		if e.Status == model.OutboxStatusPending {
			cp := *e
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *OutboxRepository) UpdateStatus(_ context.Context, id uuid.UUID, status string, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			e.Status = status
			e.Error = errMsg
			now := time.Now().UTC()
			e.ProcessedAt = &now
			return nil
		}
	}
	return repository.ErrNotFound
}

func inRange(t time.Time, dr model.DateRange) bool {
	if !dr.From.IsZero() && t.Before(dr.From) {
		return false
	}
	if !dr.To.IsZero() && !t.Before(dr.To) {
		return false
	}
	return true
}
