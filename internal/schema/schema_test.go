package schema

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTaskInput_Validate(t *testing.T) {
	tests := []struct {
		name       string
		input      TaskInput
		wantFields map[string]string
	}{
		{
			name:  "valid task",
			input: TaskInput{Name: "Write outline", ProjectID: "P1"},
		},
		{
			name:       "missing name",
			input:      TaskInput{ProjectID: "P1"},
			wantFields: map[string]string{"name": MsgTaskNameRequired},
		},
		{
			name:       "whitespace name",
			input:      TaskInput{Name: "   ", ProjectID: "P1"},
			wantFields: map[string]string{"name": MsgTaskNameRequired},
		},
		{
			name:       "missing project",
			input:      TaskInput{Name: "Write outline"},
			wantFields: map[string]string{"project_id": MsgProjectRequired},
		},
		{
			name:  "missing both",
			input: TaskInput{Description: "only a description"},
			wantFields: map[string]string{
				"name":       MsgTaskNameRequired,
				"project_id": MsgProjectRequired,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Errorf("got %d field errors, want %d: %v", len(verr.Fields), len(tt.wantFields), verr)
			}
			for field, msg := range tt.wantFields {
				if got := verr.Message(field); got != msg {
					t.Errorf("Message(%q) = %q, want %q", field, got, msg)
				}
			}
		})
	}
}

func TestProjectInput_Validate(t *testing.T) {
	if err := (ProjectInput{Name: "Launch"}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	err := ProjectInput{}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if got := verr.Message("name"); got != MsgProjectNameRequired {
		t.Errorf("Message(name) = %q, want %q", got, MsgProjectNameRequired)
	}
	if !strings.Contains(err.Error(), "name: "+MsgProjectNameRequired) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		field   string
		message string
	}{
		{name: "valid", creds: Credentials{Email: "ada@example.com", Password: "secret1"}},
		{name: "bad email", creds: Credentials{Email: "ada", Password: "secret1"}, field: "email", message: MsgInvalidEmail},
		{name: "display name form", creds: Credentials{Email: "Ada <ada@example.com>", Password: "secret1"}, field: "email", message: MsgInvalidEmail},
		{name: "short password", creds: Credentials{Email: "ada@example.com", Password: "12345"}, field: "password", message: MsgPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if got := verr.Message(tt.field); got != tt.message {
				t.Errorf("Message(%q) = %q, want %q", tt.field, got, tt.message)
			}
		})
	}
}

func TestFilterMutable(t *testing.T) {
	fields := Fields{
		"name":        "Renamed",
		"description": "",
		"project_id":  "P2",
		"completed":   true,
		"assigned_to": "someone",
		"id":          "T9",
	}

	got := FilterMutable(CollectionTasks, fields)
	want := Fields{"name": "Renamed", "description": "", "project_id": "P2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FilterMutable() mismatch (-want +got):\n%s", diff)
	}

	if got := FilterMutable(CollectionProjects, Fields{"name": "x"}); len(got) != 0 {
		t.Errorf("projects have no mutable fields, got %v", got)
	}
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name    string
		fields  Fields
		field   string
		message string
	}{
		{name: "name only", fields: Fields{"name": "New name"}},
		{name: "empty name", fields: Fields{"name": ""}, field: "name", message: MsgTaskNameRequired},
		{name: "empty project", fields: Fields{"project_id": " "}, field: "project_id", message: MsgProjectRequired},
		{name: "wrong type", fields: Fields{"description": 42}, field: "description", message: MsgMustBeText},
		{name: "only immutable", fields: Fields{"completed": true}, field: "fields", message: MsgNothingToUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFields(CollectionTasks, tt.fields)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("ValidateFields() error = %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateFields() error = %v, want *ValidationError", err)
			}
			if got := verr.Message(tt.field); got != tt.message {
				t.Errorf("Message(%q) = %q, want %q", tt.field, got, tt.message)
			}
		})
	}
}

func TestDecodeRecords(t *testing.T) {
	data := []byte(`[
		{"id":"T1","name":"Write outline","project_id":"P1","completed":false,"created_at":"2026-01-10T07:36:29Z"},
		{"id":"T2","name":"Review","description":"carefully","project_id":"P1","completed":true,"created_at":"2026-01-11T07:36:29Z"}
	]`)

	records, err := DecodeRecords(CollectionTasks, data)
	if err != nil {
		t.Fatalf("DecodeRecords() error = %v", err)
	}

	want := []Task{
		{ID: "T1", Name: "Write outline", ProjectID: "P1", CreatedAt: time.Date(2026, 1, 10, 7, 36, 29, 0, time.UTC)},
		{ID: "T2", Name: "Review", Description: "carefully", ProjectID: "P1", Completed: true, CreatedAt: time.Date(2026, 1, 11, 7, 36, 29, 0, time.UTC)},
	}
	if diff := cmp.Diff(want, TasksOf(records)); diff != "" {
		t.Errorf("TasksOf() mismatch (-want +got):\n%s", diff)
	}
	if got := ProjectsOf(records); len(got) != 0 {
		t.Errorf("ProjectsOf(tasks) = %v, want empty", got)
	}

	if _, err := DecodeRecords(Collection("users"), data); err == nil {
		t.Error("expected error for unknown collection")
	}
}

func TestParseCollection(t *testing.T) {
	for _, c := range Collections() {
		got, err := ParseCollection(string(c))
		if err != nil || got != c {
			t.Errorf("ParseCollection(%q) = %q, %v", c, got, err)
		}
	}
	if _, err := ParseCollection("teams"); err == nil {
		t.Error("expected error for unknown collection")
	}
}

func TestTask_Input(t *testing.T) {
	task := Task{ID: "T1", Name: "n", Description: "d", ProjectID: "P1", Completed: true, AssignedTo: "u"}
	want := TaskInput{Name: "n", Description: "d", ProjectID: "P1"}
	if got := task.Input(); got != want {
		t.Errorf("Input() = %+v, want %+v", got, want)
	}
	if diff := cmp.Diff(Fields{"name": "n", "description": "d", "project_id": "P1"}, want.Fields()); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}
}
