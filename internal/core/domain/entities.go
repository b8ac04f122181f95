package domain

import (
	"time"
)

// DefaultPlaceName is used when the places API returns no display name.
const DefaultPlaceName = "Pharmacie sans nom"

// SearchSchemaVersion is the current shape of persisted search records.
const SearchSchemaVersion = 1

// Place is a single result returned by the places API.
type Place struct {
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PlaceKey is the deduplication identity of a Place. Equality is exact: two results
// with slightly different coordinates are distinct places.
type PlaceKey struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Key returns the deduplication identity.
func (p Place) Key() PlaceKey {
	return PlaceKey{Name: p.Name, Latitude: p.Latitude, Longitude: p.Longitude}
}

// Cell is one circular query area of the search lattice.
type Cell struct {
	Index  int      `json:"index"`
	Center GeoPoint `json:"center"`
}

// CellFailure records a cell whose point search failed and was skipped.
type CellFailure struct {
	Cell  Cell   `json:"cell"`
	Error string `json:"error"`
}

// SearchResult is the output of one area search.
type SearchResult struct {
	Places        []Place       `json:"places"`
	TotalRequests int           `json:"total_requests"`
	Cells         int           `json:"cells"`
	Failures      []CellFailure `json:"failures,omitempty"`
}

// SearchRecord is a persisted search history entry.
type SearchRecord struct {
	ID            string      `json:"id"`
	SchemaVersion int         `json:"schema_version"`
	Name          string      `json:"name"`
	UserID        string      `json:"user_id"`
	Box           BoundingBox `json:"bounds"`
	Policy        GridPolicy  `json:"policy"`
	TotalRequests int         `json:"total_requests"`
	Cells         int         `json:"cells"`
	FailedCells   int         `json:"failed_cells"`
	PlaceCount    int         `json:"place_count"`
	Places        []Place     `json:"places,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// User is an account holding search credits.
type User struct {
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Credits       int       `json:"credits"`
	IsAdmin       bool      `json:"is_admin"`
	TotalRequests int       `json:"total_requests"`
	CreatedAt     time.Time `json:"created_at"`
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	Username string
	IsAdmin  bool
}

// SearchEstimate describes the cost of a prospective search.
type SearchEstimate struct {
	Box      BoundingBox `json:"bounds"`
	Policy   GridPolicy  `json:"policy"`
	Cells    int         `json:"cells"`
	AreaKm2  float64     `json:"area_km2"`
	TooLarge bool        `json:"too_large"`
	Credits  int         `json:"credits"`
	// CostUSD is the expected upstream API spend.
	CostUSD float64 `json:"cost_usd"`
}

// SearchProgress is emitted after each processed cell.
type SearchProgress struct {
	SearchID string `json:"search_id"`
	UserID   string `json:"user_id"`
	Cell     Cell   `json:"cell"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
	Places   int    `json:"places"`
	Requests int    `json:"requests"`
	Failed   bool   `json:"failed"`
}

// SearchCompleted is published once a search has been persisted.
type SearchCompleted struct {
	SearchID      string    `json:"search_id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Places        int       `json:"places"`
	TotalRequests int       `json:"total_requests"`
	CompletedAt   time.Time `json:"completed_at"`
}

// CoverageReport lists analysis grid points with no place within Radius meters.
type CoverageReport struct {
	Step       float64    `json:"step"`
	Radius     float64    `json:"radius"`
	GridPoints int        `json:"grid_points"`
	Gaps       []GeoPoint `json:"gaps"`
	// Covered is the fraction of grid points with a place in range.
	Covered float64 `json:"covered"`
}
