// Package legacy reads the flat JSON exports of the first version of the app
// (users.json, request_count.json, search_history.json) and converts them into
// versioned search records.
package legacy

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/gridsearch"
)

// namespace seeds deterministic record ids, so re-importing a file maps every
// entry onto the same id.
var namespace = uuid.MustParse("8d3f0b9e-4a57-4b8f-9c1e-6b2f5a0d7e41")

// User is an entry of users.json, keyed by username in the file.
type User struct {
	Password string `json:"password"`
	Credits  int    `json:"credits"`
	IsAdmin  bool   `json:"is_admin"`
}

// RequestCount is an entry of request_count.json.
type RequestCount struct {
	TotalRequests int `json:"total_requests"`
}

// Place is a stored pharmacy of a legacy search.
type Place struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Search is an entry of search_history.json. Bounds is [lat_min, lat_max, lon_min, lon_max].
// The rendered map and the viewport fields are ignored.
type Search struct {
	Name          string    `json:"name"`
	UserID        string    `json:"user_id"`
	Bounds        []float64 `json:"bounds"`
	SearchType    string    `json:"search_type"`
	SubareaStep   float64   `json:"subarea_step"`
	SubareaRadius float64   `json:"subarea_radius"`
	TotalRequests int       `json:"total_requests"`
	Timestamp     string    `json:"timestamp"`
	Pharmacies    []Place   `json:"pharmacies"`
}

// DecodeUsers reads users.json.
func DecodeUsers(r io.Reader) (map[string]User, error) {
	var out map[string]User
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return out, nil
}

// DecodeRequestCounts reads request_count.json.
func DecodeRequestCounts(r io.Reader) (map[string]RequestCount, error) {
	var out map[string]RequestCount
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode request counts: %w", err)
	}
	return out, nil
}

// DecodeHistory reads search_history.json.
func DecodeHistory(r io.Reader) ([]Search, error) {
	var out []Search
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return out, nil
}

// Users merges the account and request-count exports, sorted by name.
func Users(users map[string]User, counts map[string]RequestCount) []domain.User {
	out := make([]domain.User, 0, len(users))
	for name, u := range users {
		out = append(out, domain.User{
			Username:      name,
			PasswordHash:  u.Password,
			Credits:       u.Credits,
			IsAdmin:       u.IsAdmin,
			TotalRequests: counts[name].TotalRequests,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", domain.ErrInvalidArgument, s)
}

// RecordID is the id an entry is imported under.
func RecordID(userID, name string) string {
	return uuid.NewSHA1(namespace, []byte(userID+"\x00"+name)).String()
}

// Record converts an entry into a schema-versioned search record. Duplicate
// places are dropped, first occurrence wins. A missing timestamp falls back to now.
func (s Search) Record(now time.Time) (*domain.SearchRecord, error) {
	if s.Name == "" || s.UserID == "" {
		return nil, fmt.Errorf("%w: name and user_id are required", domain.ErrInvalidArgument)
	}
	if len(s.Bounds) != 4 {
		return nil, fmt.Errorf("%w: %q has %d bound values", domain.ErrInvalidRegion, s.Name, len(s.Bounds))
	}
	box := domain.BoundingBox{LatMin: s.Bounds[0], LatMax: s.Bounds[1], LonMin: s.Bounds[2], LonMax: s.Bounds[3]}
	if err := box.Validate(); err != nil {
		return nil, fmt.Errorf("%q: %w", s.Name, err)
	}
	policy := domain.GridPolicy{Step: s.SubareaStep, Radius: s.SubareaRadius}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%q: %w", s.Name, err)
	}

	created := now.UTC()
	if s.Timestamp != "" {
		t, err := parseTimestamp(s.Timestamp)
		if err != nil {
			return nil, err
		}
		created = t
	}

	cells, err := gridsearch.CellCount(box, policy.Step)
	if err != nil {
		return nil, err
	}

	places := make([]domain.Place, len(s.Pharmacies))
	for i, p := range s.Pharmacies {
		places[i] = domain.Place{Name: p.Name, Address: p.Address, Latitude: p.Latitude, Longitude: p.Longitude}
	}
	places = gridsearch.Dedup(places)

	return &domain.SearchRecord{
		ID:            RecordID(s.UserID, s.Name),
		SchemaVersion: domain.SearchSchemaVersion,
		Name:          s.Name,
		UserID:        s.UserID,
		Box:           box,
		Policy:        policy,
		TotalRequests: s.TotalRequests,
		Cells:         cells,
		PlaceCount:    len(places),
		Places:        places,
		CreatedAt:     created,
	}, nil
}
