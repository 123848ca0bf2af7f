package pg

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ammonsd/activitytracking/internal/auth"
)

// grantColumns are the nullable permission columns produced by the
// roles -> role_permissions -> permissions left join.
type grantColumns struct {
	id, resource, action, description sql.NullString
}

func (g *grantColumns) targets() []any {
	return []any{&g.id, &g.resource, &g.action, &g.description}
}

// appendTo adds the permission to role unless the join produced no grant.
func (g *grantColumns) appendTo(role *auth.Role) {
	if role == nil || !g.id.Valid {
		return
	}
	role.Permissions = append(role.Permissions, auth.Permission{
		ID:          g.id.String,
		Resource:    g.resource.String,
		Action:      g.action.String,
		Description: g.description.String,
	})
}

// FindRoleByName returns the role and its permissions in one round trip.
func (s *Store) FindRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description,
		       p.id, p.resource, p.action, p.description
		from roles r
		left join role_permissions rp on rp.role_id = r.id
		left join permissions p on p.id = rp.permission_id
		where r.name = $1
		order by p.resource, p.action
	`, strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var role *auth.Role
	for rows.Next() {
		var (
			id, roleName string
			desc         sql.NullString
			grant        grantColumns
		)
		if err := rows.Scan(append([]any{&id, &roleName, &desc}, grant.targets()...)...); err != nil {
			return nil, err
		}
		if role == nil {
			role = &auth.Role{ID: id, Name: roleName, Description: desc.String}
		}
		grant.appendTo(role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if role == nil {
		return nil, auth.ErrNotFound
	}
	return role, nil
}
