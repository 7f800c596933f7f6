package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/mywarranties/internal/common"
	"github.com/dmitrijs2005/mywarranties/internal/server/models"
	"github.com/dmitrijs2005/mywarranties/internal/server/services"
	"github.com/dmitrijs2005/mywarranties/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) owner(ctx context.Context) (string, error) {
	ownerID, ok := ownerFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing owner")
	}
	return ownerID, nil
}

// toStatus maps service errors onto gRPC codes. Unknown errors are logged
// and hidden behind Internal.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidRecord):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func toWire(r models.Record) wire.Record {
	return wire.Record{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ProductName:    r.ProductName,
		PurchaseDate:   r.PurchaseDate,
		ExpirationDate: r.ExpirationDate,
		ReceiptRef:     r.ReceiptRef,
		UpdatedAt:      r.UpdatedAt,
		Deleted:        r.Deleted,
		Seq:            r.Seq,
	}
}

func fromWire(r wire.Record) models.Record {
	return models.Record{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ProductName:    r.ProductName,
		PurchaseDate:   r.PurchaseDate,
		ExpirationDate: r.ExpirationDate,
		ReceiptRef:     r.ReceiptRef,
		UpdatedAt:      r.UpdatedAt,
		Deleted:        r.Deleted,
	}
}

func encode(v any) (*structpb.Struct, error) {
	out, err := wire.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func decode(in *structpb.Struct, v any) error {
	if err := wire.Decode(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(wire.PingResponse{Status: "OK"})
}

func (s *GRPCServer) FetchChanges(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	var req wire.FetchChangesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	page, err := s.records.FetchChanges(ctx, ownerID, req.Cursor, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := wire.FetchChangesResponse{Records: make([]wire.Record, 0, len(page.Records)), Cursor: page.Cursor, HasMore: page.HasMore}
	for _, r := range page.Records {
		resp.Records = append(resp.Records, toWire(r))
	}
	return encode(resp)
}

func (s *GRPCServer) Push(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	var req wire.PushRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	stored, err := s.records.Push(ctx, ownerID, services.PushRequest{
		Record:        fromWire(req.Record),
		BaseUpdatedAt: req.Record.BaseUpdatedAt,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return encode(wire.PushResponse{RemoteUpdatedAt: stored.UpdatedAt, Seq: stored.Seq})
}

func (s *GRPCServer) ReceiptUploadURL(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}

	ref, url, err := s.receipts.UploadURL(ctx, ownerID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return encode(wire.ReceiptUploadURLResponse{ReceiptRef: ref, URL: url})
}

func (s *GRPCServer) ReceiptDownloadURL(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ownerID, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	var req wire.ReceiptDownloadURLRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	url, err := s.receipts.DownloadURL(ctx, ownerID, req.ReceiptRef)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return encode(wire.ReceiptDownloadURLResponse{URL: url})
}

// Subscribe sends the owner's current version once, then a hint per
// committed change, until the client leaves or the server stops.
func (s *GRPCServer) Subscribe(_ *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	ownerID, err := s.owner(ctx)
	if err != nil {
		return err
	}

	hints, cancel := s.subs.Subscribe(ownerID)
	defer cancel()

	current, err := s.records.CurrentVersion(ctx, ownerID)
	if err != nil {
		return s.toStatus(ctx, err)
	}
	if err := s.sendHint(stream, current); err != nil {
		return err
	}

	s.logger.Debug(ctx, "subscriber attached", "owner_id", ownerID)
	defer s.logger.Debug(ctx, "subscriber detached", "owner_id", ownerID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.quit:
			return status.Error(codes.Unavailable, "server shutting down")
		case seq := <-hints:
			if err := s.sendHint(stream, seq); err != nil {
				return err
			}
		}
	}
}

func (s *GRPCServer) sendHint(stream grpc.ServerStreamingServer[structpb.Struct], seq int64) error {
	msg, err := encode(wire.Hint{Cursor: seq})
	if err != nil {
		return err
	}
	return stream.Send(msg)
}
