// Package replication encodes and decodes the mutation events a leader fans
// out to its followers over the wire.
//
// The wire format is self-describing JSON: every event carries its table
// name, so a single decode path can dispatch to the right concrete row type.
// Unknown columns are rejected rather than silently dropped — a follower
// running older code should fail loudly on a schema it doesn't understand
// instead of quietly losing data.
package replication

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

// wireEvent mirrors model.MutationEvent but carries Row as raw JSON so it
// can be decoded into the right concrete type once Table is known.
type wireEvent struct {
	Table string          `json:"table"`
	Op    string          `json:"op"`
	Row   json.RawMessage `json:"row"`
}

// Encode serializes a mutation event for transmission to a follower.
func Encode(ev model.MutationEvent) ([]byte, error) {
	row, err := json.Marshal(ev.Row)
	if err != nil {
		return nil, fmt.Errorf("replication: encode row: %w", err)
	}
	w := wireEvent{Table: ev.Table, Op: ev.Op, Row: row}
	return json.Marshal(w)
}

// Decode parses a wire-format event, rejecting any column not present on
// the destination table's row type.
func Decode(data []byte) (model.MutationEvent, error) {
	var w wireEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return model.MutationEvent{}, fmt.Errorf("replication: decode envelope: %w", err)
	}

	row, err := decodeRow(w.Table, w.Row)
	if err != nil {
		return model.MutationEvent{}, err
	}
	return model.MutationEvent{Table: w.Table, Op: w.Op, Row: row}, nil
}

func decodeRow(table string, raw json.RawMessage) (any, error) {
	strict := func(v any) error {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}

	switch table {
	case model.TableUsers:
		var u model.User
		if err := strict(&u); err != nil {
			return nil, fmt.Errorf("replication: decode users row: %w", err)
		}
		return &u, nil
	case model.TableMessages:
		var m model.Message
		if err := strict(&m); err != nil {
			return nil, fmt.Errorf("replication: decode messages row: %w", err)
		}
		return &m, nil
	case model.TableDeletedMessages:
		var d model.DeletedMessage
		if err := strict(&d); err != nil {
			return nil, fmt.Errorf("replication: decode deleted_messages row: %w", err)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("replication: %w: %q", errUnknownTable, table)
	}
}

var errUnknownTable = fmt.Errorf("unknown table")
