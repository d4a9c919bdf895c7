package main

import "encoding/json"

// JSONCodec serializes the CLI's own request/reply shapes, adapted from the
// teacher's codec.JSONCodec (mini-rpc's codec package): atomctl reads an
// AtomSpec from stdin or a file and prints an AtomReply, so a thin
// encoding/json wrapper is all the ambient codec concern needs here — the
// actual wire traffic to the master goes through the client package's
// binary protocol, not through this codec.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// AtomSpec is the JSON shape atomctl reads for one atom submission.
type AtomSpec struct {
	FutureID string `json:"future_id"`
	Kind     string `json:"kind"` // "string" or "pickle"
	Code     string `json:"code"`
	Locals   string `json:"locals"`  // base64
	Globals  string `json:"globals"` // base64
	Timeout  int    `json:"timeout_seconds"`
}

// AtomReply is the JSON shape atomctl writes for one settled future.
type AtomReply struct {
	FutureID string `json:"future_id"`
	IsError  bool   `json:"is_error"`
	Payload  string `json:"payload"` // base64
	Err      string `json:"error,omitempty"`
}
