package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"repuradar/internal/domain"
)

func valInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// EnsureSchema creates the tables. multiStatements=true must be set on the DSN.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

func validateReview(rv domain.Review) error {
	switch {
	case rv.UserID <= 0:
		return fmt.Errorf("%w: userId is required", domain.ErrValidation)
	case rv.Platform.Slug() == "":
		return fmt.Errorf("%w: unknown platform %q", domain.ErrValidation, rv.Platform)
	case rv.ExternalID == "":
		return fmt.Errorf("%w: externalId is required", domain.ErrValidation)
	case rv.Rating < 1 || rv.Rating > 5:
		return fmt.Errorf("%w: rating %d out of range 1-5", domain.ErrValidation, rv.Rating)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (r *Repo) CreateReview(ctx context.Context, rv domain.Review) (domain.Review, error) {
	if err := validateReview(rv); err != nil {
		return domain.Review{}, err
	}
	var createdAt any
	if !rv.Date.IsZero() {
		createdAt = rv.Date
	}
	res, err := r.db.ExecContext(ctx, insertReviewSQL,
		rv.UserID,
		valInt64(rv.LocationID),
		string(rv.Platform),
		rv.ExternalID,
		rv.ReviewerName,
		rv.Rating,
		rv.Text,
		rv.Sentiment,
		rv.IsResolved,
		valStr(rv.Response),
		createdAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return domain.Review{}, fmt.Errorf("review %s: %w", rv.ExternalID, domain.ErrDuplicate)
		}
		return domain.Review{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Review{}, err
	}
	rv.ID = id
	return rv, nil
}

func (r *Repo) CreateAlert(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	if a.UserID <= 0 || a.AlertType == "" || a.Content == "" {
		return domain.Alert{}, fmt.Errorf("%w: alert requires userId, alertType and content", domain.ErrValidation)
	}
	var createdAt any
	if !a.Date.IsZero() {
		createdAt = a.Date
	}
	res, err := r.db.ExecContext(ctx, insertAlertSQL, a.UserID, a.AlertType, a.Content, createdAt)
	if err != nil {
		return domain.Alert{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Alert{}, err
	}
	a.ID = id
	a.IsRead = false
	return a, nil
}

func (r *Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, `SELECT id, email, name FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.Name)
	if err == sql.ErrNoRows {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

func (r *Repo) GetLocation(ctx context.Context, userID, locationID int64) (domain.Location, error) {
	var l domain.Location
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id, name FROM locations WHERE id = ? AND user_id = ?`, locationID, userID).
		Scan(&l.ID, &l.UserID, &l.Name)
	if err == sql.ErrNoRows {
		return domain.Location{}, domain.ErrNotFound
	}
	return l, err
}

func (r *Repo) CountLocations(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func (r *Repo) ListReviewsByPlatform(ctx context.Context, userID int64, platform domain.Platform) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, listReviewsByPlatformSQL, userID, string(platform))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

func (r *Repo) ListReviews(ctx context.Context, userID int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + selectReviewColumns + " FROM reviews WHERE user_id = ?")
	args := []any{userID}
	if pg.Platform != nil {
		sb.WriteString(" AND platform = ?")
		args = append(args, string(*pg.Platform))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ?")
	limit := pg.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	items, err := scanReviews(rows)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	return domain.ReviewsPage{Items: items}, nil
}

func (r *Repo) ListAlerts(ctx context.Context, userID int64, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, listAlertsSQL, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.UserID, &a.AlertType, &a.Content, &a.Date, &a.IsRead); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Seed helpers used by onboarding and the integration tests; not part of the
// pipeline's ReviewStore port.

func (r *Repo) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (email, name) VALUES (?, ?)`, u.Email, u.Name)
	if err != nil {
		return domain.User{}, err
	}
	u.ID, err = res.LastInsertId()
	return u, err
}

func (r *Repo) CreateLocation(ctx context.Context, l domain.Location) (domain.Location, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO locations (user_id, name) VALUES (?, ?)`, l.UserID, l.Name)
	if err != nil {
		return domain.Location{}, err
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

func scanReviews(rows *sql.Rows) ([]domain.Review, error) {
	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		var (
			locationID sql.NullInt64
			platform   string
			response   sql.NullString
			createdAt  sql.NullTime
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.UserID,
			&locationID,
			&platform,
			&rv.ExternalID,
			&rv.ReviewerName,
			&rv.Rating,
			&rv.Text,
			&rv.Sentiment,
			&rv.IsResolved,
			&response,
			&createdAt,
		); err != nil {
			return nil, err
		}
		rv.Platform = domain.Platform(platform)
		if locationID.Valid {
			v := locationID.Int64
			rv.LocationID = &v
		}
		if response.Valid {
			s := response.String
			rv.Response = &s
		}
		if createdAt.Valid {
			rv.Date = createdAt.Time
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
