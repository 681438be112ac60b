// Package models defines the document and command-result types exchanged
// between the routing node and backend shards.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/cascadedb/cascade/kit/errors"
)

// Document is a command body or a shard reply. Bodies are JSON documents on
// the wire; within the router they are immutable after submission.
type Document map[string]interface{}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String returns the compact JSON encoding, for logs.
func (d Document) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%#v", map[string]interface{}(d))
	}
	return string(b)
}

// Ok reports whether the document is a command reply with an ok status.
// Replies carry ok as a number ({ok:1} / {ok:0}); a missing field counts as
// not ok.
func (d Document) Ok() bool {
	switch v := d["ok"].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// StatusFromResult extracts the status embedded in a command reply. A reply
// of {ok:1} yields nil. A reply of {ok:0, code:..., errmsg:...} yields an
// *errors.Error carrying the embedded code and message; a failed reply
// without a code maps to errors.EInternal.
func StatusFromResult(reply Document) error {
	if reply.Ok() {
		return nil
	}

	code := errors.EInternal
	if c, ok := reply["code"].(string); ok && c != "" {
		code = c
	}
	msg, _ := reply["errmsg"].(string)
	return &errors.Error{Code: code, Msg: msg}
}
