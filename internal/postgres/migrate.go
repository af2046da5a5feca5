package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var schema string

func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const samplePNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// Seed loads the demo catalog when no branch exists yet.
func Seed(ctx context.Context, db DB) error {
	var n int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM branches`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	return InTx(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO branches(id, name, address) VALUES
				(1, 'Sucursal Centro', 'Calle Falsa 123'),
				(2, 'Casa Matriz', 'Avenida Siempre Viva 742')`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO products(id, name, brand, description, price, image_base64) VALUES
				(1, 'Martillo', 'ToolCo', 'Martillo de orejas para trabajos generales.', 8500, $1),
				(2, 'Destornillador Phillips', 'FixIt', 'Destornillador Phillips de punta magnética.', 3200, $1),
				(3, 'Sierra', 'CutMaster', 'Sierra de mano para cortar madera y plástico.', 15000, $1)`, samplePNG); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_branches(product_id, branch_id, price, stock) VALUES
				(1, 1, 9000, 15),
				(1, 2, 8500, 50),
				(2, 1, 3500, 30),
				(3, 2, 16000, 25)`); err != nil {
			return err
		}
		for _, seq := range []string{"branches", "products"} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(
				`SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT MAX(id) FROM %s))`, seq, seq)); err != nil {
				return err
			}
		}
		return nil
	})
}
