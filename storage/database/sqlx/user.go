package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/user"
	"github.com/trezcool/careercompass/storage/database"
)

const userColumns = "id, name, email, role, password_hash, is_active, created_at, updated_at, last_login"

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	PasswordHash []byte    `db:"password_hash"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    null.Time `db:"created_at"`
	UpdatedAt    null.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         r.Role,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt.Time.UTC(),
		UpdatedAt:    r.UpdatedAt.Time.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	query := psql.Select("COUNT(*)").From("users").Where(sq.Eq{"email": email})
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query = query.Where(sq.NotEq{"id": ids})
	}

	var count int
	if err := getOne(ctx, repo.db, &count, query); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := psql.Insert("users").
		Columns("id", "name", "email", "role", "password_hash", "is_active", "created_at", "updated_at", "last_login").
		Values(usr.ID, usr.Name, usr.Email, usr.Role, usr.PasswordHash, usr.IsActive,
			usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), nullTime(usr.LastLogin)).
		Suffix("RETURNING " + userColumns)

	var row userRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	query := psql.Select(userColumns).From("users")
	switch {
	case filter.ID != "":
		query = query.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		query = query.Where(sq.Eq{"email": filter.Email})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

var userOrderingFields = map[string]string{
	"name":       "name",
	"email":      "email",
	"role":       "role",
	"created_at": "created_at",
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	query := psql.Select(userColumns).From("users")
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query = query.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"email": val}})
		}
		if filter.Role != "" {
			query = query.Where(sq.Eq{"role": filter.Role})
		}
		if filter.IsActive != nil {
			query = query.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}
	query = orderBy(query, ordering, userOrderingFields, "created_at DESC")

	var rows []userRow
	if err := selectAll(ctx, repo.db, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := psql.Update("users").
		SetMap(map[string]interface{}{
			"name":          usr.Name,
			"email":         usr.Email,
			"role":          usr.Role,
			"password_hash": usr.PasswordHash,
			"is_active":     usr.IsActive,
			"updated_at":    usr.UpdatedAt.UTC(),
			"last_login":    nullTime(usr.LastLogin),
		}).
		Where(sq.Eq{"id": usr.ID}).
		Suffix("RETURNING " + userColumns)

	var row userRow
	if err := getOne(ctx, repo.db, &row, query); err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, trapNoRows(err, user.ErrNotFound, "updating user")
	}
	return row.user(), nil
}
