package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/environmenttech/wastewatch/internal/core/domain"
	"github.com/environmenttech/wastewatch/internal/pkg/auth"
)

var errAdminOnly = errors.New("forbidden: admin role required")

func requireAdmin(ctx context.Context) error {
	claims := ClaimsFromCtx(ctx)
	if claims == nil || !claims.HasRole(auth.RoleAdmin) {
		return errAdminOnly
	}
	return nil
}

// buildSchema creates the read-only GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	reportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Report",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.String},
			"user_id":        &graphql.Field{Type: graphql.String},
			"description":    &graphql.Field{Type: graphql.String},
			"location":       &graphql.Field{Type: geoPointType},
			"location_label": &graphql.Field{Type: graphql.String},
			"status":         &graphql.Field{Type: graphql.String},
			"rank":           &graphql.Field{Type: graphql.Int},
			"event":          &graphql.Field{Type: graphql.String},
			"image_urls":     &graphql.Field{Type: graphql.NewList(graphql.String)},
			"resolved_by":    &graphql.Field{Type: graphql.String},
			"resolved_at":    &graphql.Field{Type: graphql.DateTime},
			"created_at":     &graphql.Field{Type: graphql.DateTime},
			"priority": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					switch r := p.Source.(type) {
					case domain.WasteReport:
						return string(r.Priority()), nil
					case *domain.WasteReport:
						return string(r.Priority()), nil
					}
					return nil, nil
				},
			},
		},
	})

	estimateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ProximityEstimate",
		Fields: graphql.Fields{
			"distance_km": &graphql.Field{Type: graphql.Float},
			"minutes":     &graphql.Field{Type: graphql.Int},
		},
	})

	rankedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RankedReport",
		Fields: graphql.Fields{
			"report":   &graphql.Field{Type: reportType},
			"estimate": &graphql.Field{Type: estimateType},
		},
	})

	metricsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ReportMetrics",
		Fields: graphql.Fields{
			"total":                     &graphql.Field{Type: graphql.Int},
			"unresolved":                &graphql.Field{Type: graphql.Int},
			"resolved":                  &graphql.Field{Type: graphql.Int},
			"avg_resolution_time_hours": &graphql.Field{Type: graphql.Float},
		},
	})

	leaderType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LeaderboardEntry",
		Fields: graphql.Fields{
			"user_id": &graphql.Field{Type: graphql.String},
			"reports": &graphql.Field{Type: graphql.Int},
			"rank":    &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"reports": &graphql.Field{
				Type:        graphql.NewList(reportType),
				Description: "List reports, newest first",
				Args: graphql.FieldConfigArgument{
					"filter": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "all"},
					"search": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					filter, err := domain.ParseReportFilter(p.Args["filter"].(string))
					if err != nil {
						return nil, err
					}
					reports, _, err := deps.Reports.List(p.Context, domain.ReportQuery{
						Filter: filter,
						Search: p.Args["search"].(string),
						Limit:  p.Args["limit"].(int),
						Offset: p.Args["offset"].(int),
					})
					return reports, err
				},
			},
			"report": &graphql.Field{
				Type:        reportType,
				Description: "Get a report by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Reports.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"nearbyReports": &graphql.Field{
				Type:        graphql.NewList(rankedType),
				Description: "Open reports ranked nearest first from a point",
				Args: graphql.FieldConfigArgument{
					"lat":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius_km": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 0.0},
					"limit":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					origin := domain.Coordinate{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					return deps.Proximity.NearbyOpen(p.Context, &origin, p.Args["radius_km"].(float64), p.Args["limit"].(int))
				},
			},
			"metrics": &graphql.Field{
				Type:        metricsType,
				Description: "Dashboard counters (admin)",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := requireAdmin(p.Context); err != nil {
						return nil, err
					}
					return deps.Admin.Metrics(p.Context)
				},
			},
			"leaderboard": &graphql.Field{
				Type:        graphql.NewList(leaderType),
				Description: "Top reporters",
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Admin.Leaderboard(p.Context, p.Args["limit"].(int))
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
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
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
