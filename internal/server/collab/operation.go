package collab

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// OpType tags the variant of an Operation.
type OpType string

const (
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
)

// Operation is an edit of session content: Insert{Position, Text} or
// Delete{Position, Length}. Positions and lengths count Unicode code points.
type Operation struct {
	Type     OpType `json:"type"`
	Position int    `json:"position"`
	Text     string `json:"text,omitempty"`
	Length   int    `json:"length,omitempty"`
}

func Insert(position int, text string) Operation {
	return Operation{Type: OpInsert, Position: position, Text: text}
}

func Delete(position, length int) Operation {
	return Operation{Type: OpDelete, Position: position, Length: length}
}

// ParseOperation decodes a wire operation, rejecting unknown fields and
// shapes that are neither a valid insert nor a valid delete.
func ParseOperation(raw []byte) (Operation, error) {
	var op Operation
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&op); err != nil {
		return Operation{}, fmt.Errorf("%w: %v", common.ErrInvalidOperation, err)
	}
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// Validate checks the shape of op without looking at any content.
func (o Operation) Validate() error {
	if o.Position < 0 {
		return fmt.Errorf("%w: negative position %d", common.ErrInvalidOperation, o.Position)
	}
	switch o.Type {
	case OpInsert:
		if o.Text == "" || o.Length != 0 {
			return fmt.Errorf("%w: insert needs text and no length", common.ErrInvalidOperation)
		}
	case OpDelete:
		if o.Length <= 0 || o.Text != "" {
			return fmt.Errorf("%w: delete needs a positive length and no text", common.ErrInvalidOperation)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", common.ErrInvalidOperation, o.Type)
	}
	return nil
}

// Apply returns content with op applied. Out-of-range positions are
// rejected, never clamped.
func (o Operation) Apply(content string) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	r := []rune(content)

	switch o.Type {
	case OpInsert:
		if o.Position > len(r) {
			return "", fmt.Errorf("%w: insert at %d beyond length %d", common.ErrInvalidOperation, o.Position, len(r))
		}
		return string(r[:o.Position]) + o.Text + string(r[o.Position:]), nil
	default:
		if o.Position > len(r) || o.Length > len(r)-o.Position {
			return "", fmt.Errorf("%w: delete of %d at %d beyond length %d", common.ErrInvalidOperation, o.Length, o.Position, len(r))
		}
		return string(r[:o.Position]) + string(r[o.Position+o.Length:]), nil
	}
}

// Transformer rewrites an incoming operation against the operations applied
// since the last flush.
type Transformer interface {
	Transform(op Operation, history []Operation) Operation
}

// PassThrough applies operations in arrival order without remapping
// positions. Concurrent edits generated against the same version may land at
// shifted offsets; every participant still converges because all of them
// observe the same applied sequence.
type PassThrough struct{}

func (PassThrough) Transform(op Operation, _ []Operation) Operation { return op }
