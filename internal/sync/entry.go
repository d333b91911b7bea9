package sync

import (
	"time"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

// Key identifies a cached query. Each collection is fetched and cached as
// one unit, so the key is the collection name.
type Key string

const (
	// KeyProjects caches the projects collection.
	KeyProjects = Key(schema.CollectionProjects)
	// KeyTasks caches the tasks collection.
	KeyTasks = Key(schema.CollectionTasks)
)

// Keys returns every gated query key.
func Keys() []Key {
	return []Key{KeyProjects, KeyTasks}
}

// KeyOf returns the query key owning collection c.
func KeyOf(c schema.Collection) Key {
	return Key(c)
}

// Collection returns the collection fetched for k.
func (k Key) Collection() schema.Collection {
	return schema.Collection(k)
}

// Valid reports whether k names a known collection.
func (k Key) Valid() bool {
	_, err := schema.ParseCollection(string(k))
	return err == nil
}

// Status is the lifecycle state of a cache entry.
type Status int

const (
	// StatusIdle means nothing has been fetched.
	StatusIdle Status = iota
	// StatusLoading means a fetch is in flight. Data holds the previous
	// result, if any.
	StatusLoading
	// StatusSuccess means Data holds the last successful result.
	StatusSuccess
	// StatusError means the last fetch failed. Err holds a *ReadError.
	StatusError
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one cached query. Data is a copy owned by the
// caller.
type Entry struct {
	Key       Key
	Data      []schema.Record
	Status    Status
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

// Fresh reports whether the entry can be served without a remote read.
func (e Entry) Fresh() bool {
	return e.Status == StatusSuccess && !e.Stale
}

// Projects returns the project records in Data.
func (e Entry) Projects() []schema.Project {
	return schema.ProjectsOf(e.Data)
}

// Tasks returns the task records in Data.
func (e Entry) Tasks() []schema.Task {
	return schema.TasksOf(e.Data)
}
