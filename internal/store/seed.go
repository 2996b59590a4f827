package store

import (
	"context"
	"database/sql"
	"fmt"
)

var seedUsers = []struct {
	email, username, hash, role, answer string
}{
	{"admin@juice-sh.op", "admin", "0192023a7bbd73250516f069df18b500", "admin", "Donald Duck"},
	{"jim@juice-sh.op", "jim", "e541ca7ecf72b8d1286474fc613e5e45", "customer", "Samuel"},
	{"bender@juice-sh.op", "bender", "0c36e517e3fa95aabf1bbffc6744a4ef", "customer", "Stop'n'Drop"},
}

var seedProducts = []Product{
	{Name: "Apple Juice (1000ml)", Description: "The all-time classic.", Price: 1.99},
	{Name: "Orange Juice (1000ml)", Description: "Made from oranges hand-picked by Uncle Dittmeyer.", Price: 2.99},
	{Name: "Eggfruit Juice (500ml)", Description: "Now with even more exotic flavour.", Price: 8.99},
	{Name: "Raspberry Juice (1000ml)", Description: "Made from blended Raspberry Pi, water and sugar.", Price: 4.99},
	{Name: "Lemon Juice (500ml)", Description: "Sour but full of vitamins.", Price: 2.99},
	{Name: "Banana Juice (1000ml)", Description: "Monkeys love it the most.", Price: 1.99},
	{Name: "Apple Pomace", Description: "Finest pressings of apples. Allergy disclaimer: Might contain traces of worms.", Price: 0.89},
	{Name: "Green Smoothie", Description: "Looks poisonous but is actually very good for your health.", Price: 1.99},
	{Name: "Fruit Press", Description: "Fruits go in. Juice comes out. Pomace you can send back to us.", Price: 89.99},
	{Name: "OWASP Juice Shop T-Shirt", Description: "Real fans wear it 24/7!", Price: 22.49},
	{Name: "OWASP Juice Shop Hoodie", Description: "Mr. Robot-style apparel.", Price: 49.99},
	{Name: "Melon Bike (Comeback-Product 2018 Edition)", Description: "The wheels of this bicycle are made from real water melons.", Price: 2999},
}

var seedCards = []struct {
	userIdx      int
	name, number string
	month, year  int
}{
	{1, "Jim", "4716190207394368", 2, 2081},
	{2, "Bender", "4024007105648108", 4, 2086},
}

// Seed fills an empty database with the demo shop. It does nothing when users
// already exist and reports whether it inserted anything.
func (s *Store) Seed(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().Unix()
		userIDs := make([]int64, len(seedUsers))
		for i, u := range seedUsers {
			id, err := s.insertID(ctx, tx,
				`INSERT INTO users (email, username, password_hash, role, created_ts) VALUES (?, ?, ?, ?, ?)`,
				u.email, u.username, u.hash, u.role, now)
			if err != nil {
				return fmt.Errorf("seed user %s: %w", u.email, err)
			}
			userIDs[i] = id
			if _, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO security_answers (user_id, answer) VALUES (?, ?)`), id, u.answer); err != nil {
				return fmt.Errorf("seed security answer: %w", err)
			}
		}

		for _, p := range seedProducts {
			if _, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO products (name, description, price) VALUES (?, ?, ?)`),
				p.Name, p.Description, p.Price); err != nil {
				return fmt.Errorf("seed product %s: %w", p.Name, err)
			}
		}

		for _, c := range seedCards {
			if _, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO cards (user_id, full_name, card_num, exp_month, exp_year) VALUES (?, ?, ?, ?, ?)`),
				userIDs[c.userIdx], c.name, c.number, c.month, c.year); err != nil {
				return fmt.Errorf("seed card: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
