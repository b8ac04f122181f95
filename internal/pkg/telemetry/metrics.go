package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span names used for instrumentation.
const (
	SpanAreaSearch   = "search.area"
	SpanChargeCredit = "search.charge"
	SpanPlacesPage   = "places.search_nearby"
	SpanCoverage     = "search.coverage"
)

// Span attribute keys.
const (
	AttrSearchID   = attribute.Key("search.id")
	AttrUser       = attribute.Key("search.user")
	AttrCells      = attribute.Key("search.cells")
	AttrFailed     = attribute.Key("search.failed_cells")
	AttrPlaces     = attribute.Key("search.places")
	AttrRequests   = attribute.Key("search.requests")
	AttrPageNumber = attribute.Key("places.page")
)
