package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smilehealth/smilehealth/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Users --

type UserRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepoPG(pool *pgxpool.Pool) *UserRepoPG {
	return &UserRepoPG{pool: pool}
}

const userCols = `id, username, email, first_name, last_name, password_hash,
	is_active, is_admin, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsActive, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt,
	)
	return &u, err
}

func (r *UserRepoPG) Create(ctx context.Context, u *User) error {
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO app_user (username, email, first_name, last_name, password_hash, is_active, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsActive, u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	q := fmt.Sprintf("SELECT %s FROM app_user WHERE id = $1", userCols)
	return scanUser(conn(ctx, r.pool).QueryRow(ctx, q, id))
}

func (r *UserRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	q := fmt.Sprintf("SELECT %s FROM app_user WHERE username = $1", userCols)
	return scanUser(conn(ctx, r.pool).QueryRow(ctx, q, username))
}

func (r *UserRepoPG) Update(ctx context.Context, u *User) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE app_user
		SET username = $2, email = $3, first_name = $4, last_name = $5,
		    password_hash = $6, is_active = $7, is_admin = $8, updated_at = NOW()
		WHERE id = $1`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsActive, u.IsAdmin,
	)
	return err
}

func (r *UserRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	return err
}

func (r *UserRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM app_user ORDER BY username LIMIT $1 OFFSET $2", userCols)
	rows, err := conn(ctx, r.pool).Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// -- Profiles --

type ProfileRepoPG struct {
	pool *pgxpool.Pool
}

func NewProfileRepoPG(pool *pgxpool.Pool) *ProfileRepoPG {
	return &ProfileRepoPG{pool: pool}
}

const profileCols = `id, user_id, role, gender, description, avatar_path, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.UserID, &p.Role, &p.Gender, &p.Description, &p.AvatarPath,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return &p, err
}

func (r *ProfileRepoPG) Create(ctx context.Context, p *Profile) error {
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO profile (user_id, role, gender, description, avatar_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.UserID, p.Role, p.Gender, p.Description, p.AvatarPath,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProfileRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	q := fmt.Sprintf("SELECT %s FROM profile WHERE user_id = $1", profileCols)
	return scanProfile(conn(ctx, r.pool).QueryRow(ctx, q, userID))
}

func (r *ProfileRepoPG) Update(ctx context.Context, p *Profile) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE profile
		SET role = $2, gender = $3, description = $4, avatar_path = $5, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Role, p.Gender, p.Description, p.AvatarPath,
	)
	return err
}

// SetBranches replaces the profile's branch memberships.
func (r *ProfileRepoPG) SetBranches(ctx context.Context, profileID uuid.UUID, branchIDs []uuid.UUID) error {
	c := conn(ctx, r.pool)
	if _, err := c.Exec(ctx, `DELETE FROM profile_branch WHERE profile_id = $1`, profileID); err != nil {
		return err
	}
	for _, bid := range branchIDs {
		if _, err := c.Exec(ctx,
			`INSERT INTO profile_branch (profile_id, branch_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			profileID, bid,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *ProfileRepoPG) ListBranches(ctx context.Context, profileID uuid.UUID) ([]Branch, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT b.id, b.name FROM branch b
		JOIN profile_branch pb ON pb.branch_id = b.id
		WHERE pb.profile_id = $1
		ORDER BY b.name`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// -- Branches --

type BranchRepoPG struct {
	pool *pgxpool.Pool
}

func NewBranchRepoPG(pool *pgxpool.Pool) *BranchRepoPG {
	return &BranchRepoPG{pool: pool}
}

func (r *BranchRepoPG) Create(ctx context.Context, b *Branch) error {
	return conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO branch (name) VALUES ($1) RETURNING id`, b.Name,
	).Scan(&b.ID)
}

func (r *BranchRepoPG) GetByName(ctx context.Context, name string) (*Branch, error) {
	var b Branch
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name FROM branch WHERE name = $1`, name,
	).Scan(&b.ID, &b.Name)
	return &b, err
}

func (r *BranchRepoPG) List(ctx context.Context) ([]Branch, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT id, name FROM branch ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (r *BranchRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM branch WHERE id = $1`, id)
	return err
}
