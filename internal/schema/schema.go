package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Collection names a store collection.
type Collection string

const (
	// CollectionProjects holds Project records.
	CollectionProjects Collection = "projects"
	// CollectionTasks holds Task records.
	CollectionTasks Collection = "tasks"
)

// Collections lists every known collection in a stable order.
func Collections() []Collection {
	return []Collection{CollectionProjects, CollectionTasks}
}

// ParseCollection converts a name into a Collection.
func ParseCollection(name string) (Collection, error) {
	switch c := Collection(name); c {
	case CollectionProjects, CollectionTasks:
		return c, nil
	default:
		return "", fmt.Errorf("unknown collection %q", name)
	}
}

// Record is implemented by every value stored in a collection.
type Record interface {
	// RecordID returns the store-assigned id (empty before insert).
	RecordID() string
	// RecordCollection returns the collection the record belongs to.
	RecordCollection() Collection
	// Validate checks the client-editable fields.
	Validate() error
}

// Fields is a partial record used for updates, keyed by column name.
type Fields map[string]any

// mutableFields is the whitelist of columns an update may touch.
var mutableFields = map[Collection][]string{
	CollectionProjects: nil,
	CollectionTasks:    {"name", "description", "project_id"},
}

// MutableFields returns the columns of c that may be changed by an update.
func MutableFields(c Collection) []string {
	fields := mutableFields[c]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// FilterMutable returns a copy of fields holding only the keys that are
// mutable for c.
func FilterMutable(c Collection, fields Fields) Fields {
	out := Fields{}
	for _, name := range mutableFields[c] {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeRecords parses a JSON array of records belonging to c.
func DecodeRecords(c Collection, data []byte) ([]Record, error) {
	switch c {
	case CollectionProjects:
		var projects []Project
		if err := json.Unmarshal(data, &projects); err != nil {
			return nil, fmt.Errorf("failed to parse projects: %w", err)
		}
		records := make([]Record, len(projects))
		for i, p := range projects {
			records[i] = p
		}
		return records, nil
	case CollectionTasks:
		var tasks []Task
		if err := json.Unmarshal(data, &tasks); err != nil {
			return nil, fmt.Errorf("failed to parse tasks: %w", err)
		}
		records := make([]Record, len(tasks))
		for i, t := range tasks {
			records[i] = t
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", c)
	}
}

// DecodeRecord parses a single JSON record belonging to c.
func DecodeRecord(c Collection, data []byte) (Record, error) {
	switch c {
	case CollectionProjects:
		var p Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse project: %w", err)
		}
		return p, nil
	case CollectionTasks:
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to parse task: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", c)
	}
}

// ProjectsOf extracts the Project values from records, skipping anything else.
func ProjectsOf(records []Record) []Project {
	out := make([]Project, 0, len(records))
	for _, r := range records {
		if p, ok := r.(Project); ok {
			out = append(out, p)
		}
	}
	return out
}

// TasksOf extracts the Task values from records, skipping anything else.
func TasksOf(records []Record) []Task {
	out := make([]Task, 0, len(records))
	for _, r := range records {
		if t, ok := r.(Task); ok {
			out = append(out, t)
		}
	}
	return out
}
