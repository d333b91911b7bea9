package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

// Select returns every record of collection c owned by ownerID, oldest first.
func (db *DB) Select(ctx context.Context, ownerID string, c schema.Collection) ([]schema.Record, error) {
	switch c {
	case schema.CollectionProjects:
		projects, err := db.ListProjects(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		records := make([]schema.Record, len(projects))
		for i, p := range projects {
			records[i] = p
		}
		return records, nil
	case schema.CollectionTasks:
		tasks, err := db.ListTasks(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		records := make([]schema.Record, len(tasks))
		for i, t := range tasks {
			records[i] = t
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", c)
	}
}

// Insert stores rec for ownerID and returns it with its assigned id and
// creation time.
func (db *DB) Insert(ctx context.Context, ownerID string, rec schema.Record) (schema.Record, error) {
	switch r := rec.(type) {
	case schema.Project:
		return db.InsertProject(ctx, ownerID, r)
	case schema.Task:
		return db.InsertTask(ctx, ownerID, r)
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

// Update applies fields to the record id of collection c.
func (db *DB) Update(ctx context.Context, ownerID string, c schema.Collection, id string, fields schema.Fields) error {
	if c != schema.CollectionTasks {
		return fmt.Errorf("update %s: %w", c, ErrReadOnly)
	}
	return db.UpdateTask(ctx, ownerID, id, fields)
}

// Delete removes the record id of collection c.
func (db *DB) Delete(ctx context.Context, ownerID string, c schema.Collection, id string) error {
	if c != schema.CollectionTasks {
		return fmt.Errorf("delete %s: %w", c, ErrReadOnly)
	}
	return db.DeleteTask(ctx, ownerID, id)
}

// ListProjects returns the projects owned by ownerID ordered by creation time.
func (db *DB) ListProjects(ctx context.Context, ownerID string) ([]schema.Project, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, team_id, created_at
		FROM projects
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []schema.Project{}
	for rows.Next() {
		var p schema.Project
		var teamID sql.NullString
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &teamID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.TeamID = teamID.String
		p.CreatedAt = stringToTime(createdAt)
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// InsertProject creates a project owned by ownerID.
func (db *DB) InsertProject(ctx context.Context, ownerID string, p schema.Project) (schema.Project, error) {
	if err := p.Validate(); err != nil {
		return schema.Project{}, fmt.Errorf("invalid project: %w", err)
	}

	p.ID = db.newID()
	p.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, team_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, ownerID, p.Name, nullString(p.TeamID), timeToString(p.CreatedAt),
	)
	if err != nil {
		return schema.Project{}, fmt.Errorf("failed to insert project: %w", err)
	}

	return p, nil
}

// ListTasks returns the tasks owned by ownerID ordered by creation time.
func (db *DB) ListTasks(ctx context.Context, ownerID string) ([]schema.Task, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, description, project_id, assigned_to, completed, created_at
		FROM tasks
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []schema.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// GetTask retrieves a single task. Returns ErrNotFound if it doesn't exist
// for ownerID.
func (db *DB) GetTask(ctx context.Context, ownerID, id string) (schema.Task, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, name, description, project_id, assigned_to, completed, created_at
		FROM tasks
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Task{}, ErrNotFound
	}
	return t, err
}

// InsertTask creates a task owned by ownerID. The referenced project must
// exist and belong to the same owner.
func (db *DB) InsertTask(ctx context.Context, ownerID string, t schema.Task) (schema.Task, error) {
	if err := t.Validate(); err != nil {
		return schema.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	if err := db.checkProject(ctx, ownerID, t.ProjectID); err != nil {
		return schema.Task{}, err
	}

	t.ID = db.newID()
	t.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, name, description, project_id, assigned_to, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, ownerID, t.Name, nullString(t.Description), t.ProjectID,
		nullString(t.AssignedTo), boolToInt(t.Completed), timeToString(t.CreatedAt),
	)
	if err != nil {
		if isConstraint(err, "FOREIGN KEY") {
			return schema.Task{}, ErrUnknownProject
		}
		return schema.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}

	return t, nil
}

// UpdateTask applies the mutable subset of fields to task id.
// Returns ErrNotFound if the task doesn't exist for ownerID.
func (db *DB) UpdateTask(ctx context.Context, ownerID, id string, fields schema.Fields) error {
	fields = schema.FilterMutable(schema.CollectionTasks, fields)
	if err := schema.ValidateFields(schema.CollectionTasks, fields); err != nil {
		return fmt.Errorf("invalid update: %w", err)
	}

	if projectID, ok := fields["project_id"].(string); ok {
		if err := db.checkProject(ctx, ownerID, projectID); err != nil {
			return err
		}
	}

	var sets []string
	var args []interface{}
	for _, name := range fields.Keys() {
		sets = append(sets, name+" = ?")
		if name == "description" {
			args = append(args, nullString(fields[name].(string)))
			continue
		}
		args = append(args, fields[name])
	}
	args = append(args, id, ownerID)

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND owner_id = ?`
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		if isConstraint(err, "FOREIGN KEY") {
			return ErrUnknownProject
		}
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteTask removes task id.
// Returns nil if the task doesn't exist (idempotent).
func (db *DB) DeleteTask(ctx context.Context, ownerID, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// GetTaskCount returns the number of tasks owned by ownerID.
func (db *DB) GetTaskCount(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE owner_id = ?", ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get task count: %w", err)
	}
	return count, nil
}

func (db *DB) checkProject(ctx context.Context, ownerID, projectID string) error {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM projects WHERE id = ? AND owner_id = ?`, projectID, ownerID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownProject
	}
	if err != nil {
		return fmt.Errorf("failed to check project %s: %w", projectID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (schema.Task, error) {
	var t schema.Task
	var description, assignedTo sql.NullString
	var completed int
	var createdAt string

	err := row.Scan(&t.ID, &t.Name, &description, &t.ProjectID, &assignedTo, &completed, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Task{}, err
		}
		return schema.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Description = description.String
	t.AssignedTo = assignedTo.String
	t.Completed = completed != 0
	t.CreatedAt = stringToTime(createdAt)
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
