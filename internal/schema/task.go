package schema

import "time"

// Task is a unit of work belonging to a project.
//
// Only Name, Description and ProjectID can be changed after creation.
// Completed and AssignedTo are carried for display but are never sent in an
// update.
type Task struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	ProjectID   string    `json:"project_id" yaml:"project_id"`
	AssignedTo  string    `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	Completed   bool      `json:"completed" yaml:"completed"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// RecordID implements Record.
func (t Task) RecordID() string { return t.ID }

// RecordCollection implements Record.
func (t Task) RecordCollection() Collection { return CollectionTasks }

// Validate checks the client-editable fields of the task.
func (t Task) Validate() error {
	return t.Input().Validate()
}

// Input returns the editable part of the task, used to pre-fill the edit form.
func (t Task) Input() TaskInput {
	return TaskInput{
		Name:        t.Name,
		Description: t.Description,
		ProjectID:   t.ProjectID,
	}
}

// TaskInput is the create/edit task form.
type TaskInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"project_id"`
}

// Validate applies the task form rules.
func (in TaskInput) Validate() error {
	verr := &ValidationError{}
	if blank(in.Name) {
		verr.Add("name", MsgTaskNameRequired)
	}
	if blank(in.ProjectID) {
		verr.Add("project_id", MsgProjectRequired)
	}
	return verr.Err()
}

// Record converts the form into a Task ready for insert.
func (in TaskInput) Record() Task {
	return Task{
		Name:        in.Name,
		Description: in.Description,
		ProjectID:   in.ProjectID,
	}
}

// Fields converts the form into an update containing every mutable column.
func (in TaskInput) Fields() Fields {
	return Fields{
		"name":        in.Name,
		"description": in.Description,
		"project_id":  in.ProjectID,
	}
}
