package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeTokens struct {
	owners map[string]string
}

func (f fakeTokens) OwnerID(token string) (string, error) {
	if id, ok := f.owners[token]; ok {
		return id, nil
	}
	return "", common.ErrInvalidToken
}

// helper to build server
func newTestServer() *GRPCServer {
	return NewGRPCServer("", logging.Nop{}, nil, nil, nil, fakeTokens{owners: map[string]string{"good": "o1"}})
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AccessTokenHeaderName, token))
}

func TestInterceptor_PingAllowsWithoutToken(t *testing.T) {
	s := newTestServer()

	info := &grpc.UnaryServerInfo{FullMethod: wire.MethodPing}
	handlerCalled := false

	h := func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled || resp != "ok" {
		t.Fatalf("handler not called through: called=%v resp=%v", handlerCalled, resp)
	}
}

func TestInterceptor_Unary(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		wantCode codes.Code
		wantID   string
	}{
		{name: "missing token", ctx: context.Background(), wantCode: codes.Unauthenticated},
		{name: "invalid token", ctx: withToken("bad"), wantCode: codes.Unauthenticated},
		{name: "valid token", ctx: withToken("good"), wantCode: codes.OK, wantID: "o1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			info := &grpc.UnaryServerInfo{FullMethod: wire.MethodPush}

			var gotID string
			h := func(ctx context.Context, req any) (any, error) {
				gotID, _ = ownerFromContext(ctx)
				return nil, nil
			}

			_, err := s.accessTokenInterceptor(tt.ctx, nil, info, h)
			if status.Code(err) != tt.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", status.Code(err), tt.wantCode, err)
			}
			if gotID != tt.wantID {
				t.Fatalf("owner = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestInterceptor_StreamCarriesOwner(t *testing.T) {
	s := newTestServer()
	info := &grpc.StreamServerInfo{FullMethod: wire.MethodSubscribe, IsServerStream: true}

	var gotID string
	h := func(srv any, ss grpc.ServerStream) error {
		gotID, _ = ownerFromContext(ss.Context())
		return nil
	}

	if err := s.streamAccessTokenInterceptor(nil, &fakeServerStream{ctx: withToken("good")}, info, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "o1" {
		t.Fatalf("owner = %q, want o1", gotID)
	}

	err := s.streamAccessTokenInterceptor(nil, &fakeServerStream{ctx: context.Background()}, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}

func TestToStatus(t *testing.T) {
	s := newTestServer()
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.ErrInvalidRecord, codes.InvalidArgument},
		{common.ErrForbidden, codes.PermissionDenied},
		{common.ErrConflict, codes.Aborted},
		{common.ErrNotFound, codes.NotFound},
		{common.ErrInvalidToken, codes.Unauthenticated},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(s.toStatus(context.Background(), tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
