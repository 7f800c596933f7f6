package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DefaultPageSize is how many changes FetchChangesSince asks for per call.
const DefaultPageSize = 200

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      wire.SyncClient
	accessToken string
	pageSize    int
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withAccessToken(ctx, s.accessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamAccessTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	return streamer(withAccessToken(ctx, s.accessToken), desc, cc, method, opts...)
}

// NewGRPCClient connects lazily to endpointURL. Extra dial options are
// appended after the defaults (insecure transport and token interceptors).
func NewGRPCClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, pageSize: DefaultPageSize}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithStreamInterceptor(c.streamAccessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = wire.NewSyncClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	req, err := wire.Encode(struct{}{})
	if err != nil {
		return err
	}
	resp, err := s.client.Ping(ctx, req)
	if err != nil {
		return mapError(err)
	}

	var out wire.PingResponse
	if err := wire.Decode(resp, &out); err != nil {
		return err
	}
	if out.Status != "OK" {
		return fmt.Errorf("%w: ping status %q", common.ErrTransient, out.Status)
	}
	return nil
}

func (s *GRPCClient) FetchChangesSince(ctx context.Context, cursor models.Cursor) iter.Seq2[models.RemoteChange, error] {
	return func(yield func(models.RemoteChange, error) bool) {
		cur := cursor
		for {
			page, err := s.fetchPage(ctx, cur)
			if err != nil {
				yield(models.RemoteChange{}, err)
				return
			}
			for _, r := range page.Records {
				cur = models.Cursor(r.Seq)
				if !yield(models.RemoteChange{Record: fromWire(r), Cursor: cur}, nil) {
					return
				}
			}
			if !page.HasMore || len(page.Records) == 0 {
				return
			}
		}
	}
}

func (s *GRPCClient) fetchPage(ctx context.Context, cursor models.Cursor) (wire.FetchChangesResponse, error) {
	var page wire.FetchChangesResponse

	req, err := wire.Encode(wire.FetchChangesRequest{Cursor: int64(cursor), Limit: s.pageSize})
	if err != nil {
		return page, err
	}
	resp, err := s.client.FetchChanges(ctx, req)
	if err != nil {
		return page, mapError(err)
	}
	if err := wire.Decode(resp, &page); err != nil {
		return page, err
	}
	return page, nil
}

func (s *GRPCClient) Push(ctx context.Context, rec models.WarrantyRecord) (models.RemoteAck, error) {
	req, err := wire.Encode(wire.PushRequest{Record: toWire(rec)})
	if err != nil {
		return models.RemoteAck{}, err
	}
	resp, err := s.client.Push(ctx, req)
	if err != nil {
		return models.RemoteAck{}, mapError(err)
	}

	var out wire.PushResponse
	if err := wire.Decode(resp, &out); err != nil {
		return models.RemoteAck{}, err
	}
	return models.RemoteAck{RemoteUpdatedAt: out.RemoteUpdatedAt.UTC()}, nil
}

func (s *GRPCClient) Subscribe(ctx context.Context, onHint func(models.Cursor)) error {
	req, err := wire.Encode(wire.SubscribeRequest{})
	if err != nil {
		return err
	}
	stream, err := s.client.Subscribe(ctx, req)
	if err != nil {
		return mapError(err)
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return mapError(err)
		}
		var hint wire.Hint
		if err := wire.Decode(msg, &hint); err != nil {
			return err
		}
		onHint(models.Cursor(hint.Cursor))
	}
}

func (s *GRPCClient) ReceiptUploadURL(ctx context.Context) (string, string, error) {
	req, err := wire.Encode(struct{}{})
	if err != nil {
		return "", "", err
	}
	resp, err := s.client.ReceiptUploadURL(ctx, req)
	if err != nil {
		return "", "", mapError(err)
	}

	var out wire.ReceiptUploadURLResponse
	if err := wire.Decode(resp, &out); err != nil {
		return "", "", err
	}
	return out.ReceiptRef, out.URL, nil
}

func (s *GRPCClient) ReceiptDownloadURL(ctx context.Context, receiptRef string) (string, error) {
	req, err := wire.Encode(wire.ReceiptDownloadURLRequest{ReceiptRef: receiptRef})
	if err != nil {
		return "", err
	}
	resp, err := s.client.ReceiptDownloadURL(ctx, req)
	if err != nil {
		return "", mapError(err)
	}

	var out wire.ReceiptDownloadURLResponse
	if err := wire.Decode(resp, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		return fmt.Errorf("%w: %s", common.ErrTransient, st.Message())
	case codes.PermissionDenied, codes.Unauthenticated, codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrRejected, st.Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %s", common.ErrConflict, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
