package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

const linkColumns = `o.id, o.slug, o.title, o.type, o.visibility, o.expires_at, o.view_count, o.owner_id, o.created_at, o.updated_at`

func scanLink(row pgx.Row) (*OneLink, error) {
	var link OneLink
	var linkType, visibility string
	err := row.Scan(&link.ID, &link.Slug, &link.Title, &linkType, &visibility, &link.ExpiresAt,
		&link.ViewCount, &link.OwnerID, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return nil, err
	}
	link.Type = LinkType(linkType)
	link.Visibility = Visibility(visibility)
	return &link, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func (s *PostgresStorage) CreateLink(ctx context.Context, link *OneLink, content Content) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := `INSERT INTO onelinks (id, slug, title, type, visibility, expires_at, owner_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`
		err := tx.QueryRow(ctx, query, link.ID, link.Slug, link.Title, string(link.Type),
			string(link.Visibility), link.ExpiresAt, link.OwnerID).Scan(&link.CreatedAt, &link.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, "onelinks_slug_key") {
				return ErrSlugTaken
			}
			return fmt.Errorf("insert onelink: %w", err)
		}
		return insertContent(ctx, tx, link, content)
	})
}

func insertContent(ctx context.Context, tx pgx.Tx, link *OneLink, content Content) error {
	var err error
	switch link.Type {
	case LinkTypeText:
		_, err = tx.Exec(ctx, `INSERT INTO text_contents (onelink_id, content) VALUES ($1, $2)`,
			link.ID, content.Text.Content)
	case LinkTypeCode:
		_, err = tx.Exec(ctx, `INSERT INTO code_contents (onelink_id, content, language) VALUES ($1, $2, $3)`,
			link.ID, content.Code.Content, content.Code.Language)
	case LinkTypeFile:
		_, err = tx.Exec(ctx, `INSERT INTO file_contents (onelink_id, file_name, file_size, mime_type, storage_key)
			VALUES ($1, $2, $3, $4, $5)`,
			link.ID, content.File.FileName, content.File.FileSize, content.File.MimeType, content.File.StorageKey)
	case LinkTypeLinks:
		err = insertBioLinks(ctx, tx, link.ID, content.Links)
	default:
		return fmt.Errorf("unknown link type %q", link.Type)
	}
	if err != nil {
		return fmt.Errorf("insert %s content: %w", link.Type, err)
	}
	return nil
}

// insertBioLinks assigns fresh ids and a contiguous order to links, in place.
func insertBioLinks(ctx context.Context, tx pgx.Tx, onelinkID uuid.UUID, links []BioLink) error {
	batch := &pgx.Batch{}
	for i := range links {
		links[i].ID = uuid.New()
		links[i].Order = i
		batch.Queue(`INSERT INTO bio_links (id, onelink_id, title, url, icon, sort_order) VALUES ($1, $2, $3, $4, $5, $6)`,
			links[i].ID, onelinkID, links[i].Title, links[i].URL, links[i].Icon, links[i].Order)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *PostgresStorage) GetBySlug(ctx context.Context, slug string) (*OneLink, error) {
	query := `SELECT ` + linkColumns + ` FROM onelinks o WHERE o.slug = $1`
	link, err := scanLink(s.pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return link, nil
}

func (s *PostgresStorage) GetByID(ctx context.Context, id uuid.UUID) (*OneLink, error) {
	query := `SELECT ` + linkColumns + ` FROM onelinks o WHERE o.id = $1`
	link, err := scanLink(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return link, nil
}

func (s *PostgresStorage) GetContent(ctx context.Context, link *OneLink) (Content, error) {
	var content Content
	switch link.Type {
	case LinkTypeText:
		var text TextContent
		err := s.pool.QueryRow(ctx, `SELECT content FROM text_contents WHERE onelink_id = $1`, link.ID).
			Scan(&text.Content)
		if err != nil {
			return Content{}, fmt.Errorf("load text content: %w", err)
		}
		content.Text = &text
	case LinkTypeCode:
		var code CodeContent
		err := s.pool.QueryRow(ctx, `SELECT content, language FROM code_contents WHERE onelink_id = $1`, link.ID).
			Scan(&code.Content, &code.Language)
		if err != nil {
			return Content{}, fmt.Errorf("load code content: %w", err)
		}
		content.Code = &code
	case LinkTypeFile:
		var file FileContent
		err := s.pool.QueryRow(ctx, `SELECT file_name, file_size, mime_type, storage_key FROM file_contents WHERE onelink_id = $1`, link.ID).
			Scan(&file.FileName, &file.FileSize, &file.MimeType, &file.StorageKey)
		if err != nil {
			return Content{}, fmt.Errorf("load file content: %w", err)
		}
		content.File = &file
	case LinkTypeLinks:
		links, err := listBioLinks(ctx, s.pool, link.ID)
		if err != nil {
			return Content{}, err
		}
		content.Links = links
	default:
		return Content{}, fmt.Errorf("unknown link type %q", link.Type)
	}
	return content, nil
}

func listBioLinks(ctx context.Context, q querier, onelinkID uuid.UUID) ([]BioLink, error) {
	rows, err := q.Query(ctx, `SELECT id, title, url, icon, sort_order FROM bio_links WHERE onelink_id = $1 ORDER BY sort_order`, onelinkID)
	if err != nil {
		return nil, fmt.Errorf("load bio links: %w", err)
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (BioLink, error) {
		var l BioLink
		err := row.Scan(&l.ID, &l.Title, &l.URL, &l.Icon, &l.Order)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("load bio links: %w", err)
	}
	return links, nil
}

func (s *PostgresStorage) UpdateLink(ctx context.Context, link *OneLink, content Content) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := `UPDATE onelinks SET title = $2, visibility = $3, expires_at = $4, updated_at = now()
			WHERE id = $1 RETURNING updated_at`
		err := tx.QueryRow(ctx, query, link.ID, link.Title, string(link.Visibility), link.ExpiresAt).
			Scan(&link.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update onelink: %w", err)
		}

		switch link.Type {
		case LinkTypeText:
			_, err = tx.Exec(ctx, `UPDATE text_contents SET content = $2 WHERE onelink_id = $1`,
				link.ID, content.Text.Content)
		case LinkTypeCode:
			_, err = tx.Exec(ctx, `UPDATE code_contents SET content = $2, language = $3 WHERE onelink_id = $1`,
				link.ID, content.Code.Content, content.Code.Language)
		case LinkTypeLinks:
			if _, err = tx.Exec(ctx, `DELETE FROM bio_links WHERE onelink_id = $1`, link.ID); err == nil {
				err = insertBioLinks(ctx, tx, link.ID, content.Links)
			}
		case LinkTypeFile:
			// file metadata is fixed at upload
		}
		if err != nil {
			return fmt.Errorf("update %s content: %w", link.Type, err)
		}
		return nil
	})
}

func (s *PostgresStorage) DeleteLink(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM onelinks WHERE id = $1`, id)
	return err
}

func (s *PostgresStorage) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE onelinks SET view_count = view_count + 1 WHERE id = $1`, id)
	return err
}

func (s *PostgresStorage) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]OneLink, error) {
	query := `SELECT ` + linkColumns + ` FROM onelinks o WHERE o.owner_id = $1 ORDER BY o.created_at DESC`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OneLink, error) {
		link, err := scanLink(row)
		if err != nil {
			return OneLink{}, err
		}
		return *link, nil
	})
}

func (s *PostgresStorage) ListExpired(ctx context.Context, now time.Time, ownerID *uuid.UUID) ([]ExpiredLink, error) {
	query := `SELECT o.id, f.storage_key FROM onelinks o
		LEFT JOIN file_contents f ON f.onelink_id = o.id
		WHERE o.expires_at IS NOT NULL AND o.expires_at <= $1
		AND ($2::uuid IS NULL OR o.owner_id = $2)`
	rows, err := s.pool.Query(ctx, query, now, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ExpiredLink, error) {
		var e ExpiredLink
		err := row.Scan(&e.ID, &e.StorageKey)
		return e, err
	})
}

func (s *PostgresStorage) DeleteLinks(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM onelinks WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const browseWhere = `o.visibility = 'PUBLIC'
	AND (o.expires_at IS NULL OR o.expires_at > $1)
	AND ($2::text = '' OR o.type = $2::text)`

func (s *PostgresStorage) Browse(ctx context.Context, filter BrowseFilter) ([]BrowseRow, int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM onelinks o WHERE `+browseWhere,
		filter.Now, string(filter.Type)).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count public links: %w", err)
	}

	orderBy := "o.created_at DESC"
	if filter.Sort == SortPopular {
		orderBy = "o.view_count DESC, o.created_at DESC"
	}

	query := `SELECT ` + linkColumns + `,
			LEFT(t.content, 151), LEFT(c.content, 101), c.language, f.file_name, f.file_size,
			(SELECT COUNT(*) FROM bio_links b WHERE b.onelink_id = o.id),
			u.name, u.image, u.username
		FROM onelinks o
		JOIN users u ON u.id = o.owner_id
		LEFT JOIN text_contents t ON t.onelink_id = o.id
		LEFT JOIN code_contents c ON c.onelink_id = o.id
		LEFT JOIN file_contents f ON f.onelink_id = o.id
		WHERE ` + browseWhere + `
		ORDER BY ` + orderBy + `
		LIMIT $3 OFFSET $4`

	rows, err := s.pool.Query(ctx, query, filter.Now, string(filter.Type), filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("browse public links: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (BrowseRow, error) {
		var r BrowseRow
		var linkType, visibility string
		err := row.Scan(&r.Link.ID, &r.Link.Slug, &r.Link.Title, &linkType, &visibility, &r.Link.ExpiresAt,
			&r.Link.ViewCount, &r.Link.OwnerID, &r.Link.CreatedAt, &r.Link.UpdatedAt,
			&r.Text, &r.Code, &r.CodeLanguage, &r.FileName, &r.FileSize, &r.LinkCount,
			&r.Author.Name, &r.Author.Image, &r.Author.Username)
		r.Link.Type = LinkType(linkType)
		r.Link.Visibility = Visibility(visibility)
		return r, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("browse public links: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStorage) LatestPublicLinksPage(ctx context.Context, ownerID uuid.UUID, now time.Time) (*OneLink, []BioLink, error) {
	query := `SELECT ` + linkColumns + ` FROM onelinks o
		WHERE o.owner_id = $1 AND o.type = 'LINKS' AND o.visibility = 'PUBLIC'
		AND (o.expires_at IS NULL OR o.expires_at > $2)
		ORDER BY o.created_at DESC LIMIT 1`
	link, err := scanLink(s.pool.QueryRow(ctx, query, ownerID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	links, err := listBioLinks(ctx, s.pool, link.ID)
	if err != nil {
		return nil, nil, err
	}
	return link, links, nil
}

func (s *PostgresStorage) ListFileKeysByOwner(ctx context.Context, ownerID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT f.storage_key FROM file_contents f
		JOIN onelinks o ON o.id = f.onelink_id WHERE o.owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const userColumns = `id, email, name, image, username`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.Username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (s *PostgresStorage) SetUsername(ctx context.Context, id uuid.UUID, username string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET username = $2 WHERE id = $1`, id, username)
	if isUniqueViolation(err, "users_username_key") {
		return ErrUsernameTaken
	}
	return err
}

func (s *PostgresStorage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
