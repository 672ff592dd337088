package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/intranet/internal/database"
	"github.com/nikhilbhutani/intranet/internal/models"
)

const (
	userColumns = `id, email, azure_ad_id, name, role, role_id, created_at, updated_at`
	selectUser  = `SELECT ` + userColumns + ` FROM users`
)

// Claims is the subset of an identity-provider token the service relies on.
type Claims struct {
	Subject string
	Email   string
	Name    string
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx, selectUser+" WHERE id = $1", id))
}

func (s *Service) GetUserByAzureID(ctx context.Context, azureID string) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx, selectUser+" WHERE azure_ad_id = $1", azureID))
}

type provisionStep int

const (
	stepCreate provisionStep = iota
	stepRefresh
	stepLink
)

// planProvision decides how a login maps onto existing rows. The subject is
// authoritative: an account already linked to a different subject is never
// taken over through its email.
func planProvision(bySubject, byEmail *models.User) (provisionStep, error) {
	switch {
	case bySubject != nil:
		return stepRefresh, nil
	case byEmail == nil:
		return stepCreate, nil
	case byEmail.AzureAdID == nil:
		return stepLink, nil
	default:
		return 0, fmt.Errorf("%w: email is linked to another identity", models.ErrUnauthorized)
	}
}

// Provision returns the user matching the identity-provider claims, creating it
// with the EMPLOYEE legacy role on first login. A known subject gets its email
// and display name refreshed. An unlinked user with the same email is linked
// to the subject.
func (s *Service) Provision(ctx context.Context, c Claims) (*models.User, error) {
	if c.Subject == "" || c.Email == "" {
		return nil, fmt.Errorf("%w: identity token lacks subject or email", models.ErrUnauthorized)
	}

	email := strings.ToLower(strings.TrimSpace(c.Email))
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = email
	}

	var u *models.User
	err := database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		// Subject lock first, email lock second, so two logins never wait on
		// each other in opposite order.
		for _, key := range []string{"users:subject:" + c.Subject, "users:email:" + email} {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
				return fmt.Errorf("lock identity: %w", err)
			}
		}

		bySubject, err := optionalUser(tx.QueryRow(ctx, selectUser+" WHERE azure_ad_id = $1", c.Subject))
		if err != nil {
			return err
		}
		var byEmail *models.User
		if bySubject == nil {
			if byEmail, err = optionalUser(tx.QueryRow(ctx, selectUser+" WHERE email = $1", email)); err != nil {
				return err
			}
		}

		step, err := planProvision(bySubject, byEmail)
		if err != nil {
			return err
		}
		switch step {
		case stepRefresh:
			u, err = scanUser(tx.QueryRow(ctx,
				`UPDATE users SET email = $2, name = $3, updated_at = now()
				 WHERE id = $1 RETURNING `+userColumns,
				bySubject.ID, email, name,
			))
		case stepLink:
			u, err = scanUser(tx.QueryRow(ctx,
				`UPDATE users SET azure_ad_id = $2, name = $3, updated_at = now()
				 WHERE id = $1 RETURNING `+userColumns,
				byEmail.ID, c.Subject, name,
			))
		default:
			u, err = scanUser(tx.QueryRow(ctx,
				`INSERT INTO users (email, azure_ad_id, name, role)
				 VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
				email, c.Subject, name, models.LegacyRoleEmployee,
			))
		}
		return err
	})
	switch {
	case database.IsUniqueViolation(err, "users_email_key"):
		return nil, fmt.Errorf("%w: email is linked to another identity", models.ErrUnauthorized)
	case err != nil:
		return nil, fmt.Errorf("provision user: %w", err)
	}
	return u, nil
}

func optionalUser(row pgx.Row) (*models.User, error) {
	u, err := scanUser(row)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.AzureAdID, &u.Name, &u.LegacyRole, &u.RoleID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
