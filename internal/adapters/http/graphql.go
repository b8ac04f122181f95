package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

var errNoPrincipal = errors.New("unauthenticated")

// buildSchema creates the read-only GraphQL schema over history, accounts and estimates.
// Field names follow the JSON tags of the domain types, which the default resolver uses.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BoundingBox",
		Fields: graphql.Fields{
			"lat_min": &graphql.Field{Type: graphql.Float},
			"lat_max": &graphql.Field{Type: graphql.Float},
			"lon_min": &graphql.Field{Type: graphql.Float},
			"lon_max": &graphql.Field{Type: graphql.Float},
		},
	})

	policyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GridPolicy",
		Fields: graphql.Fields{
			"step":   &graphql.Field{Type: graphql.Float},
			"radius": &graphql.Field{Type: graphql.Float},
		},
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"name":      &graphql.Field{Type: graphql.String},
			"address":   &graphql.Field{Type: graphql.String},
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	searchType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Search",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.String},
			"schema_version": &graphql.Field{Type: graphql.Int},
			"name":           &graphql.Field{Type: graphql.String},
			"user_id":        &graphql.Field{Type: graphql.String},
			"bounds":         &graphql.Field{Type: boundsType},
			"policy":         &graphql.Field{Type: policyType},
			"total_requests": &graphql.Field{Type: graphql.Int},
			"cells":          &graphql.Field{Type: graphql.Int},
			"failed_cells":   &graphql.Field{Type: graphql.Int},
			"place_count":    &graphql.Field{Type: graphql.Int},
			"places":         &graphql.Field{Type: graphql.NewList(placeType)},
			"created_at":     &graphql.Field{Type: graphql.DateTime},
		},
	})

	searchPageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SearchPage",
		Fields: graphql.Fields{
			"total": &graphql.Field{Type: graphql.Int},
			"items": &graphql.Field{Type: graphql.NewList(searchType)},
		},
	})

	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"username":       &graphql.Field{Type: graphql.String},
			"credits":        &graphql.Field{Type: graphql.Int},
			"is_admin":       &graphql.Field{Type: graphql.Boolean},
			"total_requests": &graphql.Field{Type: graphql.Int},
			"created_at":     &graphql.Field{Type: graphql.DateTime},
		},
	})

	coverageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CoverageReport",
		Fields: graphql.Fields{
			"step":        &graphql.Field{Type: graphql.Float},
			"radius":      &graphql.Field{Type: graphql.Float},
			"grid_points": &graphql.Field{Type: graphql.Int},
			"gaps":        &graphql.Field{Type: graphql.NewList(geoPointType)},
			"covered":     &graphql.Field{Type: graphql.Float},
		},
	})

	estimateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SearchEstimate",
		Fields: graphql.Fields{
			"bounds":    &graphql.Field{Type: boundsType},
			"policy":    &graphql.Field{Type: policyType},
			"cells":     &graphql.Field{Type: graphql.Int},
			"area_km2":  &graphql.Field{Type: graphql.Float},
			"too_large": &graphql.Field{Type: graphql.Boolean},
			"credits":   &graphql.Field{Type: graphql.Int},
			"cost_usd":  &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me": &graphql.Field{
				Type:        userType,
				Description: "The authenticated account",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					who, ok := PrincipalFromCtx(p.Context)
					if !ok {
						return nil, errNoPrincipal
					}
					return deps.Users.GetUser(p.Context, who.Username)
				},
			},
			"searches": &graphql.Field{
				Type:        searchPageType,
				Description: "Saved searches, newest first. all=true lists every user (admin only)",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
					"all":    &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					who, ok := PrincipalFromCtx(p.Context)
					if !ok {
						return nil, errNoPrincipal
					}
					limit := p.Args["limit"].(int)
					if limit <= 0 || limit > 100 {
						limit = 20
					}
					recs, total, err := deps.Searches.List(p.Context, who, p.Args["all"].(bool), p.Args["offset"].(int), limit)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"total": total, "items": recs}, nil
				},
			},
			"search": &graphql.Field{
				Type:        searchType,
				Description: "A saved search with its places",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					who, ok := PrincipalFromCtx(p.Context)
					if !ok {
						return nil, errNoPrincipal
					}
					return deps.Searches.Get(p.Context, who, p.Args["id"].(string))
				},
			},
			"coverage": &graphql.Field{
				Type:        coverageType,
				Description: "Coverage gaps of a saved search",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					who, ok := PrincipalFromCtx(p.Context)
					if !ok {
						return nil, errNoPrincipal
					}
					return deps.Searches.Coverage(p.Context, who, p.Args["id"].(string))
				},
			},
			"estimate": &graphql.Field{
				Type:        estimateType,
				Description: "Lattice size and cost of a prospective search",
				Args: graphql.FieldConfigArgument{
					"lat_min": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lat_max": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon_min": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon_max": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"preset":  &graphql.ArgumentConfig{Type: graphql.String},
					"step":    &graphql.ArgumentConfig{Type: graphql.Float},
					"radius":  &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					who, ok := PrincipalFromCtx(p.Context)
					if !ok {
						return nil, errNoPrincipal
					}
					box := domain.BoundingBox{
						LatMin: p.Args["lat_min"].(float64),
						LatMax: p.Args["lat_max"].(float64),
						LonMin: p.Args["lon_min"].(float64),
						LonMax: p.Args["lon_max"].(float64),
					}
					body := policyBody{}
					if preset, ok := p.Args["preset"].(string); ok {
						body.Preset = preset
					}
					step, hasStep := p.Args["step"].(float64)
					radius, hasRadius := p.Args["radius"].(float64)
					if hasStep || hasRadius {
						policy := deps.DefaultPolicy
						if hasStep {
							policy.Step = step
						}
						if hasRadius {
							policy.Radius = radius
						}
						body.Policy = &policy
					}
					policy, err := body.resolve(deps.DefaultPolicy)
					if err != nil {
						return nil, err
					}
					return deps.Searches.Estimate(box, policy, who)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
