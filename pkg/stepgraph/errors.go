package stepgraph

import "fmt"

// GraphError is the base interface for registry construction errors.
type GraphError interface {
	error
	// Product returns the product type whose graph is invalid.
	Product() ProductType
}

// UnknownProductTypeError is returned for product types outside the enum.
type UnknownProductTypeError struct {
	Type ProductType
}

func (e *UnknownProductTypeError) Error() string {
	return fmt.Sprintf("unknown product type: %q", string(e.Type))
}

// Product returns the product type.
func (e *UnknownProductTypeError) Product() ProductType {
	return e.Type
}

// EmptyGraphError is returned when a product type has no steps.
type EmptyGraphError struct {
	Type ProductType
}

func (e *EmptyGraphError) Error() string {
	return fmt.Sprintf("graph for %s has no steps", e.Type)
}

// Product returns the product type.
func (e *EmptyGraphError) Product() ProductType {
	return e.Type
}

// MissingGraphError is returned when a known product type has no graph.
type MissingGraphError struct {
	Type ProductType
}

func (e *MissingGraphError) Error() string {
	return fmt.Sprintf("no graph defined for product type %s", e.Type)
}

// Product returns the product type.
func (e *MissingGraphError) Product() ProductType {
	return e.Type
}

// BoundaryError is returned when a graph does not start with destination or
// does not end with summary.
type BoundaryError struct {
	Type  ProductType
	Steps []StepID
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("graph for %s must start with %s and end with %s: %s",
		e.Type, Destination, Summary, formatSteps(e.Steps))
}

// Product returns the product type.
func (e *BoundaryError) Product() ProductType {
	return e.Type
}

// DuplicateStepError is returned when a step appears twice in one graph.
type DuplicateStepError struct {
	Type ProductType
	Step StepID
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("graph for %s lists step %s more than once", e.Type, e.Step)
}

// Product returns the product type.
func (e *DuplicateStepError) Product() ProductType {
	return e.Type
}

// UnknownStepError is returned for step identifiers outside the enum.
type UnknownStepError struct {
	Type ProductType
	Step StepID
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("graph for %s references unknown step %q", e.Type, string(e.Step))
}

// Product returns the product type.
func (e *UnknownStepError) Product() ProductType {
	return e.Type
}

// PoolSourceError is returned when a select step appears before, or
// without, the step that produces its candidate pool.
type PoolSourceError struct {
	Type   ProductType
	Step   StepID
	Source StepID
}

func (e *PoolSourceError) Error() string {
	return fmt.Sprintf("graph for %s: step %s reads candidates of %s which does not precede it",
		e.Type, e.Step, e.Source)
}

// Product returns the product type.
func (e *PoolSourceError) Product() ProductType {
	return e.Type
}

// InvalidOptionalError is returned when a step marked optional is not in
// the graph, is a searching step, or is a boundary step.
type InvalidOptionalError struct {
	Type   ProductType
	Step   StepID
	Reason string
}

func (e *InvalidOptionalError) Error() string {
	return fmt.Sprintf("graph for %s: step %s cannot be optional: %s", e.Type, e.Step, e.Reason)
}

// Product returns the product type.
func (e *InvalidOptionalError) Product() ProductType {
	return e.Type
}
