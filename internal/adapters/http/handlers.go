package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
)

// StatsCacheKey holds the cached global request total.
const StatsCacheKey = "stats:requests:total"

const statsCacheTTL = 60 // seconds

// policyBody is the grid policy part of a request: an explicit policy or a preset name.
type policyBody struct {
	Policy *domain.GridPolicy `json:"policy"`
	Preset string             `json:"preset"`
}

func (b policyBody) resolve(def domain.GridPolicy) (domain.GridPolicy, error) {
	if b.Preset != "" {
		p, ok := domain.PolicyPreset(b.Preset)
		if !ok {
			return domain.GridPolicy{}, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidPolicy, b.Preset)
		}
		return p, nil
	}
	if b.Policy != nil {
		return *b.Policy, nil
	}
	return def, nil
}

type estimateBody struct {
	policyBody
	Bounds *domain.BoundingBox `json:"bounds"`
	Center *domain.GeoPoint    `json:"center"`
	Zoom   float64             `json:"zoom"`
}

type searchBody struct {
	policyBody
	Name   string             `json:"name"`
	Bounds domain.BoundingBox `json:"bounds"`
}

// EstimateHandler reports the lattice size and cost of a prospective search,
// either for explicit bounds or for a map viewport (center + zoom).
func EstimateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body estimateBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		policy, err := body.resolve(deps.DefaultPolicy)
		if err != nil {
			return writeError(c, err)
		}

		var est *domain.SearchEstimate
		switch {
		case body.Bounds != nil:
			est, err = deps.Searches.Estimate(*body.Bounds, policy, principal(c))
		case body.Center != nil:
			est, err = deps.Searches.EstimateView(*body.Center, body.Zoom, policy, principal(c))
		default:
			return errBadRequest(c, "bounds or center is required")
		}
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(est)
	}
}

// CreateSearchHandler runs an area search and saves it. With ?async=true the
// search is preflighted here and handed to the workflow worker.
func CreateSearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body searchBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		policy, err := body.resolve(deps.DefaultPolicy)
		if err != nil {
			return writeError(c, err)
		}
		req := usecases.SearchRequest{Name: body.Name, Box: body.Bounds, Policy: policy}
		p := principal(c)
		ctx := c.UserContext()

		if c.QueryBool("async") {
			if deps.Async == nil {
				return errUnavailable(c, "asynchronous searches are not enabled")
			}
			if err := deps.Searches.Preflight(ctx, p, req); err != nil {
				return writeError(c, err)
			}
			id := usecases.NewSearchID()
			runID, err := deps.Async.StartAreaSearch(ctx, p, id, req)
			if err != nil {
				return writeError(c, err)
			}
			LoggerFromCtx(ctx).Info("area search started", "search_id", id, "run_id", runID, "user", p.Username)
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"search_id": id,
				"run_id":    runID,
				"status":    "started",
			})
		}

		rec, err := deps.Searches.Run(ctx, p, req)
		if err != nil {
			return writeError(c, err)
		}
		c.Location("/v1/searches/" + rec.ID)
		return c.Status(fiber.StatusCreated).JSON(rec)
	}
}

// ListSearchesHandler returns the caller's history. Admins may pass all=true.
func ListSearchesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c, 20, 100)
		recs, total, err := deps.Searches.List(c.UserContext(), principal(c), c.QueryBool("all"), offset, limit)
		if err != nil {
			return writeError(c, err)
		}
		if recs == nil {
			recs = []domain.SearchRecord{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: recs, Pagination: pg})
	}
}

// GetSearchHandler returns one saved search with its places.
func GetSearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := deps.Searches.Get(c.UserContext(), principal(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(rec)
	}
}

var placesCSVHeader = []string{"name", "address", "latitude", "longitude"}

// PlacesCSVHandler downloads the places of a saved search as CSV.
func PlacesCSVHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := deps.Searches.Get(c.UserContext(), principal(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write(placesCSVHeader)
		for _, p := range rec.Places {
			_ = w.Write([]string{
				p.Name,
				p.Address,
				strconv.FormatFloat(p.Latitude, 'f', -1, 64),
				strconv.FormatFloat(p.Longitude, 'f', -1, 64),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return writeError(c, err)
		}

		c.Attachment("pharmacies_" + rec.Name + ".csv")
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Send(buf.Bytes())
	}
}

// CoverageHandler returns the coverage gaps of a saved search.
func CoverageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := deps.Searches.Coverage(c.UserContext(), principal(c), c.Params("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(report)
	}
}

// PresetsHandler lists the named grid policies.
func PresetsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"fast":    domain.PresetFast,
			"precise": domain.PresetPrecise,
		})
	}
}

// MeHandler returns the caller's account.
func MeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := deps.Users.GetUser(c.UserContext(), principal(c).Username)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(u)
	}
}

// RequestStatsHandler returns the caller's upstream request count and its
// estimated cost. Admins may pass scope=all for the total over every saved
// search, cached briefly.
func RequestStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := principal(c)
		ctx := c.UserContext()

		if c.Query("scope") != "all" {
			n, err := deps.Users.TotalRequests(ctx, p.Username)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(fiber.Map{"scope": "user", "user": p.Username, "total_requests": n, "cost_usd": requestCost(n)})
		}
		if !p.IsAdmin {
			return errForbidden(c, "scope=all is admin only")
		}

		if deps.Cache != nil {
			if data, err := deps.Cache.Get(ctx, StatsCacheKey); err == nil {
				if n, err := strconv.Atoi(string(data)); err == nil {
					return c.JSON(fiber.Map{"scope": "all", "total_requests": n, "cost_usd": requestCost(n)})
				}
			} else if !errors.Is(err, ports.ErrCacheMiss) {
				LoggerFromCtx(ctx).Warn("stats cache read failed", "error", err)
			}
		}

		n, err := deps.Users.TotalRequests(ctx, "")
		if err != nil {
			return writeError(c, err)
		}
		if deps.Cache != nil {
			if err := deps.Cache.Set(ctx, StatsCacheKey, []byte(strconv.Itoa(n)), statsCacheTTL); err != nil {
				LoggerFromCtx(ctx).Warn("stats cache write failed", "error", err)
			}
		}
		return c.JSON(fiber.Map{"scope": "all", "total_requests": n, "cost_usd": requestCost(n)})
	}
}

func requestCost(n int) float64 {
	return float64(n) * usecases.CellCostUSD
}

// ListUsersHandler returns every account.
func ListUsersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		users, err := deps.Users.ListUsers(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		if users == nil {
			users = []domain.User{}
		}
		return c.JSON(users)
	}
}

// CreateUserHandler registers an account with the initial balance.
func CreateUserHandler(deps *Dependencies) fiber.Handler {
	type body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	return func(c *fiber.Ctx) error {
		var b body
		if err := c.BodyParser(&b); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		u, err := deps.Users.CreateUser(c.UserContext(), b.Username, b.Password)
		if err != nil {
			return writeError(c, err)
		}
		c.Location("/v1/users/" + u.Username)
		return c.Status(fiber.StatusCreated).JSON(u)
	}
}

// DeleteUserHandler removes an account and its history.
func DeleteUserHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		username := strings.TrimSpace(c.Params("username"))
		if err := deps.Users.DeleteUser(c.UserContext(), username); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// SetCreditsHandler overwrites an account's balance.
func SetCreditsHandler(deps *Dependencies) fiber.Handler {
	type body struct {
		Credits *int `json:"credits"`
	}
	return func(c *fiber.Ctx) error {
		var b body
		if err := c.BodyParser(&b); err != nil || b.Credits == nil {
			return errBadRequest(c, "credits is required")
		}
		username := c.Params("username")
		if err := deps.Users.SetCredits(c.UserContext(), username, *b.Credits); err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{"username": username, "credits": *b.Credits})
	}
}
