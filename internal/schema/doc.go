// Package schema defines the records taskboard stores and the validation
// rules applied to them before anything leaves the client.
//
// # Collections
//
// Two collections exist, each fetched and cached as a single unit:
//
//   - projects - Project records ({id, name, team_id, created_at})
//   - tasks    - Task records ({id, name, description, project_id,
//     assigned_to, completed, created_at})
//
// Identifiers and timestamps are assigned by the store. A record built on
// the client never carries an id.
//
// # Mutable Fields
//
// Updates are expressed as a Fields map. Only the keys returned by
// MutableFields may reach the store; FilterMutable drops everything else:
//
//	fields := schema.FilterMutable(schema.CollectionTasks, schema.Fields{
//	    "name":      "Write outline",
//	    "completed": true, // dropped
//	})
//
// # Validation
//
// Validation failures are reported per field through *ValidationError so a
// form can render each message next to its input:
//
//	err := schema.TaskInput{Name: ""}.Validate()
//	var verr *schema.ValidationError
//	if errors.As(err, &verr) {
//	    fmt.Println(verr.Message("name")) // "Task name is required"
//	}
//
// # Design Principles
//
//   - Flat JSON structure, last-write-wins on the store side
//   - Field names match the store's column names
//   - No external validation libraries (keep dependencies minimal)
package schema
