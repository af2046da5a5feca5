package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

var (
	ErrAlreadyExists  = errors.New("product already exists")
	ErrInvalidProduct = errors.New("invalid product")
)

const (
	serviceName      = "catalog.ProductService"
	addProductMethod = "/" + serviceName + "/AddProduct"
)

// jsonCodec carries the plain request/response structs below, so the
// service needs no generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type AddProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageBase64 string          `json:"image_base64"`
}

type AddProductResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ProductID int64  `json:"product_id"`
}

type ProductServiceServer interface {
	AddProduct(ctx context.Context, req *AddProductRequest) (*AddProductResponse, error)
}

func addProductHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AddProductRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProductServiceServer).AddProduct(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: addProductMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProductServiceServer).AddProduct(ctx, req.(*AddProductRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var productServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ProductServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddProduct", Handler: addProductHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterProductServiceServer(s grpc.ServiceRegistrar, srv ProductServiceServer) {
	s.RegisterService(&productServiceDesc, srv)
}

// Dial opens a plaintext connection to the catalog service.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	}, opts...)
	return grpc.DialContext(ctx, addr, opts...)
}

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client { return &Client{conn: conn} }

// AddProduct maps AlreadyExists and InvalidArgument to ErrAlreadyExists and
// ErrInvalidProduct.
func (c *Client) AddProduct(ctx context.Context, req AddProductRequest) (*AddProductResponse, error) {
	out := new(AddProductResponse)
	err := c.conn.Invoke(ctx, addProductMethod, &req, out, grpc.CallContentSubtype(jsonCodec{}.Name()))
	if err != nil {
		switch status.Code(err) {
		case codes.AlreadyExists:
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, status.Convert(err).Message())
		case codes.InvalidArgument:
			return nil, fmt.Errorf("%w: %s", ErrInvalidProduct, status.Convert(err).Message())
		}
		return nil, fmt.Errorf("add product: %w", err)
	}
	return out, nil
}
