package schema

import "time"

// Project groups tasks. Projects are created by users and never edited.
type Project struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	TeamID    string    `json:"team_id,omitempty" yaml:"team_id,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// RecordID implements Record.
func (p Project) RecordID() string { return p.ID }

// RecordCollection implements Record.
func (p Project) RecordCollection() Collection { return CollectionProjects }

// Validate checks the client-editable fields of the project.
func (p Project) Validate() error {
	return ProjectInput{Name: p.Name}.Validate()
}

// ProjectInput is the create-project form.
type ProjectInput struct {
	Name string `json:"name"`
}

// Validate applies the project form rules.
func (in ProjectInput) Validate() error {
	verr := &ValidationError{}
	if blank(in.Name) {
		verr.Add("name", MsgProjectNameRequired)
	}
	return verr.Err()
}

// Record converts the form into a Project ready for insert.
func (in ProjectInput) Record() Project {
	return Project{Name: in.Name}
}
