package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/fleetview/internal/core/domain"
)

// buildSchema creates a read-only GraphQL schema over the tracking store.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	deviceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Device",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.Int},
			"name":       &graphql.Field{Type: graphql.String},
			"uniqueId":   &graphql.Field{Type: graphql.String},
			"status":     &graphql.Field{Type: graphql.String},
			"disabled":   &graphql.Field{Type: graphql.Boolean},
			"lastUpdate": &graphql.Field{Type: graphql.String},
			"positionId": &graphql.Field{Type: graphql.Int},
			"groupId":    &graphql.Field{Type: graphql.Int},
			"model":      &graphql.Field{Type: graphql.String},
			"category":   &graphql.Field{Type: graphql.String},
		},
	})

	geofenceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Geofence",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.Int},
			"name":        &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"area":        &graphql.Field{Type: graphql.String},
		},
	})

	routePointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RoutePoint",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.Int},
			"deviceId":  &graphql.Field{Type: graphql.Int},
			"fixTime":   &graphql.Field{Type: graphql.String},
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
			"altitude":  &graphql.Field{Type: graphql.Float},
			"speed":     &graphql.Field{Type: graphql.Float},
			"course":    &graphql.Field{Type: graphql.Float},
			"address":   &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"version": &graphql.Field{
				Type:        graphql.Int,
				Description: "Store version, bumped on every change",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return int(deps.store().Version()), nil
				},
			},
			"session": &graphql.Field{
				Type:        graphql.String,
				Description: "Session object as raw JSON, null before the first fetch",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s := deps.store().Session()
					if s == nil {
						return nil, nil
					}
					return string(s), nil
				},
			},
			"devices": &graphql.Field{
				Type: graphql.NewList(deviceType),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					devices := deps.store().Devices()
					id, ok := p.Args["id"].(int)
					if !ok {
						return devices, nil
					}
					out := []domain.Device{}
					for _, d := range devices {
						if d.ID == int64(id) {
							out = append(out, d)
						}
					}
					return out, nil
				},
			},
			"geofences": &graphql.Field{
				Type: graphql.NewList(geofenceType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().Geofences(), nil
				},
			},
			"route": &graphql.Field{
				Type:        graphql.NewList(routePointType),
				Description: "Simplified route of the selected device",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().Route(), nil
				},
			},
			"path": &graphql.Field{
				Type:        graphql.NewList(graphql.NewList(graphql.Float)),
				Description: "Route geometry as [lon, lat] pairs",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					path := deps.store().Path()
					out := make([][]float64, len(path))
					for i, v := range path {
						out[i] = []float64{v.Lon(), v.Lat()}
					}
					return out, nil
				},
			},
			"timestamps": &graphql.Field{
				Type:        graphql.NewList(graphql.Float),
				Description: "Epoch milliseconds, one per path point",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ts := deps.store().Timestamps()
					out := make([]float64, len(ts))
					for i, v := range ts {
						out[i] = float64(v)
					}
					return out, nil
				},
			},
			"headings": &graphql.Field{
				Type: graphql.NewList(graphql.Float),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().Headings(), nil
				},
			},
			"showTerrain": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().ShowTerrain(), nil
				},
			},
			"showSigns": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().ShowSigns(), nil
				},
			},
			"showBuildings": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().ShowBuildings(), nil
				},
			},
			"from": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().From(), nil
				},
			},
			"to": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.store().To(), nil
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
		if req.Query == "" {
			return errBadRequest(c, "query is required")
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
