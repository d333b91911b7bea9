package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
)

// MsgIDRequired is reported when an update or delete names no record.
const MsgIDRequired = "Record id is required"

// MutationConfig configures the mutation coordinator.
type MutationConfig struct {
	// RefetchAfterMutation starts a background read of the affected key
	// after each successful mutation (default: true).
	RefetchAfterMutation bool

	// Logger for mutation activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultMutationConfig returns sensible defaults
func DefaultMutationConfig() *MutationConfig {
	return &MutationConfig{
		RefetchAfterMutation: true,
	}
}

// Mutations is the mutation coordinator. It validates writes locally,
// sends them to the backend and, once the backend confirms, invalidates
// the affected query so the cache is refreshed from the source of truth.
// The cache is never edited optimistically.
type Mutations struct {
	remote  remote.Collections
	gate    *Gate
	queries *Queries
	refetch bool
	logger  *log.Logger
}

// NewMutations creates a mutation coordinator.
func NewMutations(client remote.Collections, gate *Gate, queries *Queries, config *MutationConfig) *Mutations {
	if config == nil {
		config = DefaultMutationConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[mutation] ", log.LstdFlags)
	}
	return &Mutations{
		remote:  client,
		gate:    gate,
		queries: queries,
		refetch: config.RefetchAfterMutation,
		logger:  logger,
	}
}

// Create validates rec and inserts it into collection c. On success the
// collection's query is invalidated before onSuccess (which may be nil) is
// called with the stored record.
func (m *Mutations) Create(ctx context.Context, c schema.Collection, rec schema.Record, onSuccess func(schema.Record)) (schema.Record, error) {
	if !m.gate.Current().Active() {
		return nil, ErrNotAuthenticated
	}
	if rec.RecordCollection() != c {
		return nil, fmt.Errorf("cannot create %s record in %s", rec.RecordCollection(), c)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	stored, err := m.remote.Insert(ctx, c, rec)
	if err != nil {
		return nil, &WriteError{Op: OpCreate, Collection: c, Err: err}
	}

	m.logger.Printf("Created %s %s", c, stored.RecordID())
	m.confirmed(c)
	if onSuccess != nil {
		onSuccess(stored)
	}
	return stored, nil
}

// Update changes record id in collection c. Keys outside the collection's
// mutable fields are dropped before sending; if none remain the update is
// rejected locally.
func (m *Mutations) Update(ctx context.Context, c schema.Collection, id string, fields schema.Fields, onSuccess func()) error {
	if !m.gate.Current().Active() {
		return ErrNotAuthenticated
	}
	if err := requireID(id); err != nil {
		return err
	}

	update := schema.FilterMutable(c, fields)
	if err := schema.ValidateFields(c, update); err != nil {
		return err
	}

	if err := m.remote.Update(ctx, c, id, update); err != nil {
		return &WriteError{Op: OpUpdate, Collection: c, ID: id, Err: err}
	}

	m.logger.Printf("Updated %s %s (%s)", c, id, strings.Join(update.Keys(), ", "))
	m.confirmed(c)
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// Delete removes record id from collection c.
func (m *Mutations) Delete(ctx context.Context, c schema.Collection, id string, onSuccess func()) error {
	if !m.gate.Current().Active() {
		return ErrNotAuthenticated
	}
	if err := requireID(id); err != nil {
		return err
	}

	if err := m.remote.Delete(ctx, c, id); err != nil {
		return &WriteError{Op: OpDelete, Collection: c, ID: id, Err: err}
	}

	m.logger.Printf("Deleted %s %s", c, id)
	m.confirmed(c)
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// confirmed marks the collection's query stale and optionally refreshes it.
func (m *Mutations) confirmed(c schema.Collection) {
	key := KeyOf(c)
	m.queries.Invalidate(key)
	if m.refetch {
		m.queries.Prefetch(key)
	}
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		verr := &schema.ValidationError{}
		verr.Add("id", MsgIDRequired)
		return verr
	}
	return nil
}

// CreateProject submits the create-project form.
func (m *Mutations) CreateProject(ctx context.Context, in schema.ProjectInput, onSuccess func(schema.Project)) (schema.Project, error) {
	if err := in.Validate(); err != nil {
		return schema.Project{}, err
	}

	rec, err := m.Create(ctx, schema.CollectionProjects, in.Record(), func(r schema.Record) {
		if onSuccess != nil {
			onSuccess(r.(schema.Project))
		}
	})
	if err != nil {
		return schema.Project{}, err
	}
	return rec.(schema.Project), nil
}

// CreateTask submits the create-task form.
func (m *Mutations) CreateTask(ctx context.Context, in schema.TaskInput, onSuccess func(schema.Task)) (schema.Task, error) {
	if err := in.Validate(); err != nil {
		return schema.Task{}, err
	}

	rec, err := m.Create(ctx, schema.CollectionTasks, in.Record(), func(r schema.Record) {
		if onSuccess != nil {
			onSuccess(r.(schema.Task))
		}
	})
	if err != nil {
		return schema.Task{}, err
	}
	return rec.(schema.Task), nil
}

// UpdateTask submits the edit-task form for task id.
func (m *Mutations) UpdateTask(ctx context.Context, id string, in schema.TaskInput, onSuccess func()) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return m.Update(ctx, schema.CollectionTasks, id, in.Fields(), onSuccess)
}

// DeleteTask deletes task id.
func (m *Mutations) DeleteTask(ctx context.Context, id string, onSuccess func()) error {
	return m.Delete(ctx, schema.CollectionTasks, id, onSuccess)
}
