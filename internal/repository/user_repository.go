package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wiselib/api/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserIDTaken   = errors.New("user id already registered")
	ErrUserEmailUsed = errors.New("email already registered")
)

const userColumns = `
	id, first_name, middle_name, last_name, suffix, full_name, email, user_type,
	course, year_level, section, department, position, phone, address, gender, birthdate,
	password_hash, two_factor_enabled, two_factor_key,
	qr_code_data, qr_code_generated_at, qr_code_active, is_active, avatar_key,
	created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.MiddleName,
		&user.LastName,
		&user.Suffix,
		&user.FullName,
		&user.Email,
		&user.Type,
		&user.Course,
		&user.YearLevel,
		&user.Section,
		&user.Department,
		&user.Position,
		&user.Phone,
		&user.Address,
		&user.Gender,
		&user.Birthdate,
		&user.PasswordHash,
		&user.TwoFactorEnabled,
		&user.TwoFactorKey,
		&user.QRCodeData,
		&user.QRCodeGeneratedAt,
		&user.QRCodeActive,
		&user.IsActive,
		&user.AvatarKey,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, first_name, middle_name, last_name, suffix, full_name, email, user_type,
			course, year_level, section, department, position, phone, address, gender, birthdate,
			password_hash, two_factor_enabled, two_factor_key,
			qr_code_data, qr_code_generated_at, qr_code_active, is_active, avatar_key,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.MiddleName,
		user.LastName,
		user.Suffix,
		user.FullName,
		user.Email,
		user.Type,
		user.Course,
		user.YearLevel,
		user.Section,
		user.Department,
		user.Position,
		user.Phone,
		user.Address,
		user.Gender,
		user.Birthdate,
		user.PasswordHash,
		user.TwoFactorEnabled,
		user.TwoFactorKey,
		user.QRCodeData,
		user.QRCodeGeneratedAt,
		user.QRCodeActive,
		user.IsActive,
		user.AvatarKey,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "email") {
			return ErrUserEmailUsed
		}
		return ErrUserIDTaken
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// FindByLogin accepts either a user id or an email address.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 OR LOWER(email) = LOWER($1) LIMIT 1`
	return scanUser(r.pool.QueryRow(ctx, query, login))
}

func (r *UserRepository) UpdateProfile(ctx context.Context, user models.User) error {
	const query = `
		UPDATE users SET
			first_name = $2, middle_name = $3, last_name = $4, suffix = $5, full_name = $6,
			email = $7, course = $8, year_level = $9, section = $10, department = $11,
			position = $12, phone = $13, address = $14, gender = $15, birthdate = $16,
			updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.MiddleName,
		user.LastName,
		user.Suffix,
		user.FullName,
		user.Email,
		user.Course,
		user.YearLevel,
		user.Section,
		user.Department,
		user.Position,
		user.Phone,
		user.Address,
		user.Gender,
		user.Birthdate,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserEmailUsed
	}
	return affected(cmd, err, ErrUserNotFound)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, hash)
	return affected(cmd, err, ErrUserNotFound)
}

func (r *UserRepository) SetTwoFactor(ctx context.Context, id string, enabled bool, key string) error {
	const query = `UPDATE users SET two_factor_enabled = $2, two_factor_key = $3, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, enabled, key)
	return affected(cmd, err, ErrUserNotFound)
}

func (r *UserRepository) SetQRCode(ctx context.Context, id string, data string, generatedAt time.Time) error {
	const query = `UPDATE users SET qr_code_data = $2, qr_code_generated_at = $3, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, data, generatedAt)
	return affected(cmd, err, ErrUserNotFound)
}

func (r *UserRepository) SetQRActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET qr_code_active = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, active)
	return affected(cmd, err, ErrUserNotFound)
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, active)
	return affected(cmd, err, ErrUserNotFound)
}

func (r *UserRepository) SetAvatar(ctx context.Context, id string, key string) error {
	const query = `UPDATE users SET avatar_key = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, key)
	return affected(cmd, err, ErrUserNotFound)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	return affected(cmd, err, ErrUserNotFound)
}

type UserFilter struct {
	Type   models.UserType
	Search string
	SortBy string
	Desc   bool
	Limit  int
	Offset int
}

var userSortColumns = map[string]string{
	"name":    "full_name",
	"id":      "id",
	"email":   "email",
	"created": "created_at",
}

func (r *UserRepository) List(ctx context.Context, filter UserFilter) ([]models.User, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("user_type = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(full_name ILIKE $%d OR email ILIKE $%d OR id ILIKE $%d OR course ILIKE $%d OR department ILIKE $%d)",
			n, n, n, n, n))
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	column, ok := userSortColumns[filter.SortBy]
	if !ok {
		column = "full_name"
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", column, direction)

	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) ListAdminIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM users WHERE user_type = 'admin' AND is_active`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func affected(cmd pgconn.CommandTag, err error, notFound error) error {
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
