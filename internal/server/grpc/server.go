// Package grpc exposes the remote store over gRPC: the WarrantySync service
// from internal/wire, guarded by access-token interceptors.
package grpc

import (
	"context"
	"net"
	"sync"

	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/server/models"
	"github.com/dmitrijs2005/mywarranties/internal/server/services"
	"github.com/dmitrijs2005/mywarranties/internal/wire"
	"google.golang.org/grpc"
)

// RecordStore is the record side of the service.
type RecordStore interface {
	Push(ctx context.Context, ownerID string, req services.PushRequest) (models.Record, error)
	FetchChanges(ctx context.Context, ownerID string, cursor int64, limit int) (services.Page, error)
	CurrentVersion(ctx context.Context, ownerID string) (int64, error)
}

type ReceiptSigner interface {
	UploadURL(ctx context.Context, ownerID string) (receiptRef string, url string, err error)
	DownloadURL(ctx context.Context, ownerID, receiptRef string) (string, error)
}

// Subscriptions delivers version hints for an owner.
type Subscriptions interface {
	Subscribe(ownerID string) (<-chan int64, func())
}

type TokenVerifier interface {
	OwnerID(token string) (string, error)
}

type GRPCServer struct {
	address  string
	records  RecordStore
	receipts ReceiptSigner
	subs     Subscriptions
	tokens   TokenVerifier
	logger   logging.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

var _ wire.SyncServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, records RecordStore, receipts ReceiptSigner, subs Subscriptions, tokens TokenVerifier) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		records:  records,
		receipts: receipts,
		subs:     subs,
		tokens:   tokens,
		quit:     make(chan struct{}),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	)
	wire.RegisterSyncServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully. Open subscriptions are ended first so the stop can finish.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.quitOnce.Do(func() { close(s.quit) })
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
