// Package wire defines the messages exchanged between the device agent and
// the remote store, and the gRPC service carrying them.
//
// Messages travel as google.protobuf.Struct values so the service needs no
// generated code. Each Go message type is converted with Encode/Decode,
// which go through protojson; 64-bit integers are carried as strings to
// keep their precision.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Record is a warranty record on the wire.
type Record struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	ProductName    string    `json:"product_name"`
	PurchaseDate   time.Time `json:"purchase_date"`
	ExpirationDate time.Time `json:"expiration_date"`
	ReceiptRef     string    `json:"receipt_ref,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
	BaseUpdatedAt  time.Time `json:"base_updated_at"`
	Deleted        bool      `json:"deleted"`
	Seq            int64     `json:"seq,string"`
}

type PingResponse struct {
	Status string `json:"status"`
}

type FetchChangesRequest struct {
	Cursor int64 `json:"cursor,string"`
	Limit  int   `json:"limit"`
}

type FetchChangesResponse struct {
	Records []Record `json:"records"`
	// Cursor is the seq of the last record in the page, or the request
	// cursor when the page is empty.
	Cursor  int64 `json:"cursor,string"`
	HasMore bool  `json:"has_more"`
}

type PushRequest struct {
	Record Record `json:"record"`
}

type PushResponse struct {
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	Seq             int64     `json:"seq,string"`
}

type ReceiptUploadURLResponse struct {
	ReceiptRef string `json:"receipt_ref"`
	URL        string `json:"url"`
}

type ReceiptDownloadURLRequest struct {
	ReceiptRef string `json:"receipt_ref"`
}

type ReceiptDownloadURLResponse struct {
	URL string `json:"url"`
}

type SubscribeRequest struct{}

// Hint tells a subscriber the owner's records changed up to Cursor.
type Hint struct {
	Cursor int64 `json:"cursor,string"`
}

// Encode converts a message into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire encode: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("wire encode: %w", err)
	}
	return s, nil
}

// Decode fills v from a Struct. A nil Struct decodes as an empty message.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("wire decode: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("wire decode: %w", err)
	}
	return nil
}
