package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const productColumns = `id, name, description, price`

func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
}

// SearchProducts matches query case-insensitively against product names and
// descriptions.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return s.queryProducts(ctx, s.rebind(
		`SELECT `+productColumns+` FROM products
		 WHERE LOWER(name) LIKE ? OR LOWER(description) LIKE ?
		 ORDER BY id ASC`), like, like)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, email, username, role FROM users WHERE id = ?`), id).
		Scan(&u.ID, &u.Email, &u.Username, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// LookupUser resolves an identity string: a numeric id, an email address or
// a username.
func (s *Store) LookupUser(ctx context.Context, key string) (*User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("empty identity: %w", ErrNotFound)
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return s.GetUser(ctx, id)
	}

	u := &User{}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, email, username, role FROM users
		 WHERE LOWER(email) = ? OR LOWER(username) = ?
		 ORDER BY id ASC LIMIT 1`), strings.ToLower(key), strings.ToLower(key)).
		Scan(&u.ID, &u.Email, &u.Username, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetBasket returns the user's basket; a user without one gets an empty
// snapshot rather than ErrNotFound.
func (s *Store) GetBasket(ctx context.Context, userID int64) (*Basket, error) {
	b := &Basket{UserID: userID, Items: []BasketItem{}}

	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id FROM baskets WHERE user_id = ?`), userID).Scan(&b.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT p.id, p.name, p.price, bi.quantity
		 FROM basket_items bi JOIN products p ON p.id = bi.product_id
		 WHERE bi.basket_id = ?
		 ORDER BY bi.id ASC`), b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it BasketItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

// AddItem adds quantity units of a product to the user's basket, creating the
// basket on first use.
func (s *Store) AddItem(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM products WHERE id = ?`), productID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}

		basketID, err := s.ensureBasket(ctx, tx, userID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE basket_items SET quantity = quantity + ? WHERE basket_id = ? AND product_id = ?`),
			quantity, basketID, productID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO basket_items (basket_id, product_id, quantity) VALUES (?, ?, ?)`),
			basketID, productID, quantity)
		return err
	})
}

func (s *Store) ensureBasket(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM baskets WHERE user_id = ?`), userID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return s.insertID(ctx, tx, `INSERT INTO baskets (user_id) VALUES (?)`, userID)
}

func (s *Store) RemoveItem(ctx context.Context, userID, productID int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM basket_items
		 WHERE product_id = ? AND basket_id IN (SELECT id FROM baskets WHERE user_id = ?)`),
		productID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d in basket: %w", productID, ErrNotFound)
	}
	return nil
}

func (s *Store) SaveCoupon(ctx context.Context, c Coupon) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO coupons (code, user_id, discount, expires_ts) VALUES (?, ?, ?, ?)`),
		c.Code, c.UserID, c.Discount, c.ExpiresAt.Unix())
	return err
}
