package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/repository"
)

type bookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) repository.BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(ctx context.Context, b *domain.Book) error {
	query := `INSERT INTO books (title, author, description, genre, price_cents, total_quantity, available_quantity, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	return r.db.QueryRowContext(ctx, query, b.Title, b.Author, b.Description, b.Genre, b.PriceCents, b.TotalQuantity, b.AvailableQuantity, time.Now(), time.Now()).Scan(&b.ID)
}

func (r *bookRepository) GetByID(ctx context.Context, id int32) (*domain.Book, error) {
	b := &domain.Book{}
	query := `SELECT id, title, author, description, genre, price_cents, total_quantity, available_quantity, created_on, updated_on FROM books WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.Genre, &b.PriceCents, &b.TotalQuantity, &b.AvailableQuantity, &b.CreatedOn, &b.UpdatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *bookRepository) List(ctx context.Context) ([]domain.Book, error) {
	query := `SELECT id, title, author, description, genre, price_cents, total_quantity, available_quantity, created_on, updated_on FROM books ORDER BY title`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.Genre, &b.PriceCents, &b.TotalQuantity, &b.AvailableQuantity, &b.CreatedOn, &b.UpdatedOn); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (r *bookRepository) Delete(ctx context.Context, id int32) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// ReserveCopy serializes concurrent borrows on the same book at the database:
// the decrement only applies while a copy is free, so available_quantity can
// never go negative no matter how many requests race.
func (r *bookRepository) ReserveCopy(ctx context.Context, bookID int32) error {
	query := `UPDATE books SET available_quantity = available_quantity - 1, updated_on = $2
	          WHERE id = $1 AND available_quantity > 0`
	res, err := r.db.ExecContext(ctx, query, bookID, time.Now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrBookOutOfStock
	}
	return nil
}

// ReleaseCopy is clamped so a stray double release can never push
// available_quantity past total_quantity.
func (r *bookRepository) ReleaseCopy(ctx context.Context, bookID int32) error {
	query := `UPDATE books SET available_quantity = available_quantity + 1, updated_on = $2
	          WHERE id = $1 AND available_quantity < total_quantity`
	res, err := r.db.ExecContext(ctx, query, bookID, time.Now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrInventoryInvariant
	}
	return nil
}
