// Package catalog serves product search and product provisioning.
package catalog

import (
	"context"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-hardware-checkout/internal/postgres"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand,omitempty"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageBase64 string          `json:"image_base64,omitempty"`
	Branches    []BranchStock   `json:"branches"`
}

type BranchStock struct {
	BranchID int64           `json:"branch_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type Searcher interface {
	Search(ctx context.Context, q string) ([]Product, error)
}

type Repo struct{ DB postgres.Querier }

// Search matches q against product names, and also against the product id
// when q is numeric.
func (r *Repo) Search(ctx context.Context, q string) ([]Product, error) {
	q = strings.TrimSpace(q)
	var id *int64
	if n, err := strconv.ParseInt(q, 10, 64); err == nil {
		id = &n
	}

	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.name, COALESCE(p.brand, ''), COALESCE(p.description, ''), p.price,
		       COALESCE(p.image_base64, ''), COALESCE(pb.branch_id, 0), COALESCE(b.name, ''),
		       COALESCE(pb.price, 0), COALESCE(pb.stock, 0)
		FROM products p
		LEFT JOIN product_branches pb ON pb.product_id = p.id
		LEFT JOIN branches b ON b.id = pb.branch_id
		WHERE ($1::bigint IS NOT NULL AND p.id = $1) OR p.name ILIKE $2
		ORDER BY p.id, pb.branch_id`, id, "%"+escapeLike(q)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var (
			p  Product
			bs BranchStock
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Description, &p.Price, &p.ImageBase64,
			&bs.BranchID, &bs.Name, &bs.Price, &bs.Stock); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != p.ID {
			p.Branches = []BranchStock{}
			out = append(out, p)
		}
		// zero branch id: product without stock rows (LEFT JOIN miss)
		if bs.BranchID == 0 {
			continue
		}
		last := &out[len(out)-1]
		last.Branches = append(last.Branches, bs)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
