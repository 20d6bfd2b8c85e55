// Package inventory defines the candidate provider contract consumed by the
// navigator and the adapters that fulfil it.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// Criteria narrows a candidate search.
type Criteria struct {
	ProductType stepgraph.ProductType `json:"product_type"`
	Destination journey.Destination   `json:"destination"`
	Nights      int                   `json:"nights"`
	// Context carries selections made earlier in the session, keyed by
	// slot, so that e.g. transports can be matched to the chosen hotel.
	Context map[string]string `json:"context,omitempty"`
}

// Provider fetches candidates for a searching or prefetching step.
// An empty result is a successful search.
type Provider interface {
	Search(ctx context.Context, step stepgraph.StepID, criteria Criteria) ([]journey.Candidate, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, step stepgraph.StepID, criteria Criteria) ([]journey.Candidate, error)

// Search calls f.
func (f ProviderFunc) Search(ctx context.Context, step stepgraph.StepID, criteria Criteria) ([]journey.Candidate, error) {
	return f(ctx, step, criteria)
}

// Resource names the inventory collection and direction a step searches.
type Resource struct {
	Collection string
	Direction  string
}

var resources = map[stepgraph.StepID]Resource{
	stepgraph.HotelSearch:          {Collection: "hotels"},
	stepgraph.FlightSearchOutbound: {Collection: "flights", Direction: "outbound"},
	stepgraph.FlightSearchReturn:   {Collection: "flights", Direction: "return"},
	stepgraph.TransportArrival:     {Collection: "transports", Direction: "arrival"},
	stepgraph.TransportDeparture:   {Collection: "transports", Direction: "departure"},
	stepgraph.ActivitySearch:       {Collection: "activities"},
}

// ResourceFor returns the resource searched on entering step.
func ResourceFor(step stepgraph.StepID) (Resource, error) {
	r, ok := resources[step]
	if !ok {
		return Resource{}, &UnsupportedStepError{Step: step}
	}
	return r, nil
}

// ErrNoDestination is returned when a search is issued without a city.
var ErrNoDestination = errors.New("search criteria has no destination city")

// UnsupportedStepError is returned for steps that do not search inventory.
type UnsupportedStepError struct {
	Step stepgraph.StepID
}

func (e *UnsupportedStepError) Error() string {
	return fmt.Sprintf("step %s does not search inventory", e.Step)
}

// UpstreamError is returned when the inventory backend answers with a
// non-success status.
type UpstreamError struct {
	Step       stepgraph.StepID
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("inventory search for %s failed: status %d", e.Step, e.StatusCode)
	}
	return fmt.Sprintf("inventory search for %s failed: status %d: %s", e.Step, e.StatusCode, e.Body)
}
