package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

// ToggleWishlist adds product to user's wishlist or removes it if already present.
// It reports whether the product is wishlisted after the call.
func (s *Store) ToggleWishlist(ctx context.Context, user, product int64) (bool, error) {
	s.logger.Debugf("Toggling wishlist entry (user: %d, product: %d)", user, product)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	// error handling can be omitted for rollback according docs
	defer tx.Rollback(context.Background())

	tag, err := tx.Exec(ctx, "delete from wishlists where user_id = $1 and product_id = $2", user, product)
	if err != nil {
		return false, err
	}

	wishlisted := false
	if tag.RowsAffected() == 0 {
		// a concurrent toggle may insert the same pair first, the entry is then already present
		sql := `insert into wishlists (user_id, product_id, created_at) values ($1, $2, $3)
				on conflict (user_id, product_id) do nothing`
		_, err = tx.Exec(ctx, sql, user, product, time.Now().UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case pgerrcode.ForeignKeyViolation:
					if pgErr.ConstraintName == "wishlists_user_id_fkey" {
						return false, ErrUserNotExist
					}
					return false, ErrProductNotExist
				}
			}
			return false, err
		}
		wishlisted = true
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	return wishlisted, nil
}

// WishlistByUser returns wishlisted products, most recently added first
func (s *Store) WishlistByUser(ctx context.Context, user int64) ([]Product, error) {
	sql := `select products.id, products.owner_id, products.name, products.description, products.price,
				   products.image_url, products.status, products.created_at, products.updated_at
			  from wishlists
			  join products
				on products.id = wishlists.product_id
			 where wishlists.user_id = $1
			 order by wishlists.created_at desc, products.id desc`
	return s.queryProducts(ctx, sql, user)
}
