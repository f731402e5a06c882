package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

const productColumns = "id, owner_id, name, description, price, image_url, status, created_at, updated_at"

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		image pgtype.Text
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &image, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if image.Status == pgtype.Present {
		p.ImageURL = image.String
	}
	return p, nil
}

// CreateProduct inserts a product owned by p.OwnerID and returns the stored record
func (s *Store) CreateProduct(ctx context.Context, p Product) (Product, error) {
	s.logger.Debugf("Creating product (%s) for owner (id: %d)", p.Name, p.OwnerID)

	now := time.Now().UTC()
	if p.Status == "" {
		p.Status = StatusSelling
	}
	sql := `insert into products (owner_id, name, description, price, status, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $6)
			returning ` + productColumns
	created, err := scanProduct(s.db.QueryRow(ctx, sql, p.OwnerID, p.Name, p.Description, p.Price, p.Status, now))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return Product{}, ErrUserNotExist
		}
		return Product{}, err
	}

	s.logger.Debugf("Created product with id %d", created.ID)

	return created, nil
}

// ProductByID returns product with provided id
func (s *Store) ProductByID(ctx context.Context, id int64) (Product, error) {
	sql := "select " + productColumns + " from products where id = $1"
	p, err := scanProduct(s.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotExist
		}
		return Product{}, err
	}
	return p, nil
}

// Products returns all products from newest to oldest
func (s *Store) Products(ctx context.Context) ([]Product, error) {
	sql := "select " + productColumns + " from products order by created_at desc, id desc"
	return s.queryProducts(ctx, sql)
}

// ProductsByOwner returns products owned by user from newest to oldest
func (s *Store) ProductsByOwner(ctx context.Context, owner int64) ([]Product, error) {
	sql := "select " + productColumns + " from products where owner_id = $1 order by created_at desc, id desc"
	return s.queryProducts(ctx, sql, owner)
}

// UpdateProduct writes present fields of patch and returns updated product
func (s *Store) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	s.logger.Debugf("Updating product (id: %d)", id)

	var (
		sets []string
		args []interface{}
	)
	set := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if v, ok := patch.Name.Get(); ok {
		set("name", v)
	}
	if v, ok := patch.Description.Get(); ok {
		set("description", v)
	}
	if v, ok := patch.Price.Get(); ok {
		set("price", v)
	}
	if v, ok := patch.Status.Get(); ok {
		set("status", v)
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	sql := fmt.Sprintf("update products set %s where id = $%d returning %s",
		strings.Join(sets, ", "), len(args), productColumns)

	p, err := scanProduct(s.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotExist
		}
		return Product{}, err
	}
	return p, nil
}

// SetProductImage stores url of uploaded product image
func (s *Store) SetProductImage(ctx context.Context, id int64, url string) (Product, error) {
	sql := "update products set image_url = $1, updated_at = $2 where id = $3 returning " + productColumns
	p, err := scanProduct(s.db.QueryRow(ctx, sql, url, time.Now().UTC(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotExist
		}
		return Product{}, err
	}
	return p, nil
}

// DeleteProduct removes product, wishlist entries and chat rooms are removed by cascade
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	s.logger.Debugf("Deleting product (id: %d)", id)

	tag, err := s.db.Exec(ctx, "delete from products where id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotExist
	}
	return nil
}

func (s *Store) queryProducts(ctx context.Context, sql string, args ...interface{}) ([]Product, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d products", len(products))

	return products, nil
}
