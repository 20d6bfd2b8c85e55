package journey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// InvariantError reports a mutation the active step graph does not allow.
// It indicates session corruption or a caller bug, never user error.
type InvariantError struct {
	Op          string
	ProductType stepgraph.ProductType
	Step        stepgraph.StepID
	Slot        stepgraph.Slot
	Reason      string
}

func (e *InvariantError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "journey invariant violated in %s", e.Op)
	if e.ProductType != "" {
		fmt.Fprintf(&b, " (%s)", e.ProductType)
	}
	if e.Step != "" {
		fmt.Fprintf(&b, " step=%s", e.Step)
	}
	if e.Slot != "" {
		fmt.Fprintf(&b, " slot=%s", e.Slot)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// IsInvariant reports whether err is an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// ErrUndeterminedProductType is returned by Hydrate when a document has no
// usable product type and no components to infer one from.
var ErrUndeterminedProductType = errors.New("cannot determine product type of offer document")
