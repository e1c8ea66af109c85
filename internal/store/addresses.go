package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mkurbatov/go-shop/internal/database"
	"github.com/mkurbatov/go-shop/internal/models"
)

func CreateAddress(ctx context.Context, db *sql.DB, userID int64, street, city, country string) (*models.Address, error) {
	address := &models.Address{}

	query := `
		INSERT INTO addresses (user_id, street, city, country, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, street, city, country, created_at`

	err := db.QueryRowContext(ctx, query, userID, street, city, country).Scan(
		&address.ID,
		&address.UserID,
		&address.Street,
		&address.City,
		&address.Country,
		&address.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}

	return address, nil
}

func GetAddress(ctx context.Context, db *sql.DB, id int64) (*models.Address, error) {
	address := &models.Address{}

	query := `
		SELECT id, user_id, street, city, country, created_at
		FROM addresses
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&address.ID,
		&address.UserID,
		&address.Street,
		&address.City,
		&address.Country,
		&address.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return address, nil
}
