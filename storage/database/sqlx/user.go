package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/user"
)

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

const userColumns = "id, email, password_hash, created_at, updated_at, last_login"

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := ex.ExecContext(ctx, q, usr.ID, usr.Email, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, usr.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, arg interface{}, exec []core.DBExecutor) (user.User, error) {
	ex := getExec(repo.db, exec)
	var usr user.User
	q := ex.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	if err := ex.GetContext(ctx, &usr, q, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, "id = ?", id, exec)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, "email = ?", email, exec)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := getExec(repo.db, exec)
	q := ex.Rebind(`UPDATE users SET email = ?, password_hash = ?, updated_at = ?, last_login = ? WHERE id = ?`)
	res, err := ex.ExecContext(ctx, q, usr.Email, usr.PasswordHash, usr.UpdatedAt, usr.LastLogin, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return usr, nil
}
