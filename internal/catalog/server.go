package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-hardware-checkout/internal/postgres"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultBrand = "Generica"

// Server implements ProductServiceServer on Postgres. New products start
// without branch stock.
type Server struct {
	DB  postgres.Querier
	Log *zap.Logger
}

func (s *Server) AddProduct(ctx context.Context, req *AddProductRequest) (*AddProductResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if !req.Price.IsPositive() {
		return nil, status.Error(codes.InvalidArgument, "price must be positive")
	}

	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO products(name, brand, description, price, image_base64)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''))
		RETURNING id`, name, defaultBrand, req.Description, req.Price, req.ImageBase64).Scan(&id)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			s.Log.Info("product already exists", zap.String("name", name))
			return nil, status.Errorf(codes.AlreadyExists, "product %q already exists", name)
		}
		s.Log.Error("insert product", zap.String("name", name), zap.Error(err))
		return nil, status.Error(codes.Internal, "could not add product")
	}

	s.Log.Info("product added", zap.Int64("product_id", id), zap.String("name", name))
	return &AddProductResponse{
		Success:   true,
		Message:   fmt.Sprintf("product %q added", name),
		ProductID: id,
	}, nil
}
