// Package grpcpeer is the real network Peer backend: one gRPC
// service, Deliver, carrying the full peer message vocabulary as a
// gob-encoded envelope rather than a protoc-generated proto.Message.
//
// The wire vocabulary (transport.Message) is a small, closed set of
// Go structs defined once in transport/messages.go; there is no
// externally-consumed .proto schema to generate from, so this package
// registers a gob-based codec with google.golang.org/grpc/encoding and
// writes the same grpc.ServiceDesc / unary handler plumbing that
// protoc-gen-go-grpc would otherwise emit, grounded on
// src/server/network/comm.go in the teacher repository (see
// DESIGN.md for the full rationale).
package grpcpeer

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype every Deliver call on both the
// client and server side negotiates through encoding.RegisterCodec.
const CodecName = "gob"

// gobCodec implements google.golang.org/grpc/encoding.Codec by
// delegating to encoding/gob. It is registered once in init() and
// selected per-call via grpc.CallContentSubtype(CodecName) on the
// client and automatically by grpc-go on the server, which looks up
// the codec named by the request's content-subtype header.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
