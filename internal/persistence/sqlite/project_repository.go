package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/hrms/internal/persistence"
)

const projectColumns = `id, name, description, status, start_date, end_date, owner_id, created_at, updated_at`

// ProjectRepository implements persistence.ProjectRepository using SQLite.
type ProjectRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewProjectRepository creates a new SQLite project repository.
func NewProjectRepository(pool *ConnectionPool) *ProjectRepository {
	return &ProjectRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateProject inserts a project together with its initial members.
func (r *ProjectRepository) CreateProject(ctx context.Context, project persistence.Project) error {
	if project.ID == "" || project.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			project.ID,
			project.Name,
			project.Description,
			project.Status,
			nullString(project.StartDate),
			nullString(project.EndDate),
			project.OwnerID,
			toMillis(project.CreatedAt),
			toMillis(project.UpdatedAt),
		)
		if err != nil {
			return err
		}
		for _, member := range project.Members {
			member.ProjectID = project.ID
			if err := insertProjectMember(ctx, tx, member); err != nil {
				return err
			}
		}
		return nil
	})
	return r.mapper.MapError(err)
}

// UpdateProject overwrites project attributes. Memberships are unchanged.
func (r *ProjectRepository) UpdateProject(ctx context.Context, project persistence.Project) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE projects
		SET name = ?, description = ?, status = ?, start_date = ?, end_date = ?, owner_id = ?, updated_at = ?
		WHERE id = ?
	`,
		project.Name,
		project.Description,
		project.Status,
		nullString(project.StartDate),
		nullString(project.EndDate),
		project.OwnerID,
		toMillis(project.UpdatedAt),
		project.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// GetProject retrieves a project with its members.
func (r *ProjectRepository) GetProject(ctx context.Context, id string) (persistence.Project, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if err != nil {
		return persistence.Project{}, r.mapper.MapError(err)
	}

	members, err := r.loadMembers(ctx, []string{project.ID})
	if err != nil {
		return persistence.Project{}, err
	}
	project.Members = members[project.ID]
	return project, nil
}

// DeleteProject removes a project; memberships cascade.
func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// ListProjects returns projects ordered by name. A non-empty memberID restricts the
// result to projects that user belongs to.
func (r *ProjectRepository) ListProjects(ctx context.Context, memberID string) ([]persistence.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if memberID != "" {
		query += ` WHERE id IN (SELECT project_id FROM project_members WHERE user_id = ?)`
		args = append(args, memberID)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	projects := make([]persistence.Project, 0)
	ids := make([]string, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		projects = append(projects, project)
		ids = append(ids, project.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	members, err := r.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].Members = members[projects[i].ID]
	}
	return projects, nil
}

// AddMember inserts a membership; an existing membership is persistence.ErrDuplicate.
func (r *ProjectRepository) AddMember(ctx context.Context, member persistence.ProjectMember) error {
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertProjectMember(ctx, tx, member)
	})
	return r.mapper.MapError(err)
}

// RemoveMember deletes a membership.
func (r *ProjectRepository) RemoveMember(ctx context.Context, projectID, userID string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

func (r *ProjectRepository) loadMembers(ctx context.Context, projectIDs []string) (map[string][]persistence.ProjectMember, error) {
	members := make(map[string][]persistence.ProjectMember, len(projectIDs))
	if len(projectIDs) == 0 {
		return members, nil
	}

	query := `SELECT project_id, user_id, role, added_at FROM project_members WHERE project_id IN (` +
		placeholders(len(projectIDs)) + `) ORDER BY added_at ASC, user_id ASC`
	rows, err := r.helper.Query(ctx, query, stringArgs(projectIDs)...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			member  persistence.ProjectMember
			addedAt int64
		)
		if err := rows.Scan(&member.ProjectID, &member.UserID, &member.Role, &addedAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		member.AddedAt = fromMillis(addedAt)
		members[member.ProjectID] = append(members[member.ProjectID], member)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return members, nil
}

func insertProjectMember(ctx context.Context, tx *sql.Tx, member persistence.ProjectMember) error {
	role := member.Role
	if role == "" {
		role = "member"
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role, added_at) VALUES (?, ?, ?, ?)`,
		member.ProjectID, member.UserID, role, toMillis(member.AddedAt),
	)
	return err
}

func scanProject(row rowScanner) (persistence.Project, error) {
	var (
		project              persistence.Project
		startDate, endDate   sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&project.Status,
		&startDate,
		&endDate,
		&project.OwnerID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Project{}, err
	}
	project.StartDate = stringPtr(startDate)
	project.EndDate = stringPtr(endDate)
	project.CreatedAt = fromMillis(createdAt)
	project.UpdatedAt = fromMillis(updatedAt)
	return project, nil
}
