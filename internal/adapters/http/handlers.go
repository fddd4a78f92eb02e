package http

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/usecases"
)

// headerStateVersion carries the store version a response was read at.
const headerStateVersion = "X-State-Version"

// fieldBinding connects one state field to its accessor and setter.
type fieldBinding struct {
	get func(*usecases.TrackingStore) any
	set func(*usecases.TrackingStore, []byte) error
}

func bind[T any](get func(*usecases.TrackingStore) T, set func(*usecases.TrackingStore, T)) fieldBinding {
	return fieldBinding{
		get: func(s *usecases.TrackingStore) any { return get(s) },
		set: func(s *usecases.TrackingStore, body []byte) error {
			var v T
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			set(s, v)
			return nil
		},
	}
}

type trackingStore = usecases.TrackingStore

var fieldBindings = map[string]fieldBinding{
	domain.FieldSession:       bind((*trackingStore).Session, (*trackingStore).SetSession),
	domain.FieldDevices:       bind((*trackingStore).Devices, (*trackingStore).SetDevices),
	domain.FieldTimestamps:    bind((*trackingStore).Timestamps, (*trackingStore).SetTimestamps),
	domain.FieldPath:          bind((*trackingStore).Path, (*trackingStore).SetPath),
	domain.FieldHeadings:      bind((*trackingStore).Headings, (*trackingStore).SetHeadings),
	domain.FieldRoute:         bind((*trackingStore).Route, (*trackingStore).SetRoute),
	domain.FieldGeofences:     bind((*trackingStore).Geofences, (*trackingStore).SetGeofences),
	domain.FieldShowTerrain:   bind((*trackingStore).ShowTerrain, (*trackingStore).SetTerrain),
	domain.FieldShowSigns:     bind((*trackingStore).ShowSigns, (*trackingStore).SetSigns),
	domain.FieldShowBuildings: bind((*trackingStore).ShowBuildings, (*trackingStore).SetBuildings),
	domain.FieldFrom:          bind((*trackingStore).From, (*trackingStore).SetFrom),
	domain.FieldTo:            bind((*trackingStore).To, (*trackingStore).SetTo),
}

func setVersion(c *fiber.Ctx, v uint64) {
	c.Set(headerStateVersion, strconv.FormatUint(v, 10))
}

// GetStateHandler returns the whole tracking state.
func GetStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := deps.store()
		setVersion(c, s.Version())
		return c.JSON(s.State())
	}
}

// GetFieldHandler returns a single state field.
func GetFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, ok := fieldBindings[c.Params("field")]
		if !ok {
			return errNotFound(c, "unknown field: "+c.Params("field"))
		}
		s := deps.store()
		setVersion(c, s.Version())
		return c.JSON(b.get(s))
	}
}

// PutFieldHandler replaces a single state field with the JSON request body.
func PutFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		field := c.Params("field")
		b, ok := fieldBindings[field]
		if !ok {
			return errNotFound(c, "unknown field: "+field)
		}

		body := c.Body()
		if len(body) == 0 {
			return errBadRequest(c, "request body is required")
		}
		s := deps.store()
		if err := b.set(s, body); err != nil {
			return errBadRequest(c, "invalid "+field+": "+err.Error())
		}

		setVersion(c, s.Version())
		return c.JSON(b.get(s))
	}
}

// UserDataHandler runs GetUserData and returns the refreshed state.
func UserDataHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Tracking.GetUserData(c.UserContext()); err != nil {
			return errFetch(c, err)
		}
		s := deps.store()
		setVersion(c, s.Version())
		return c.JSON(s.State())
	}
}

// PathHandler runs GetPath with the from, to and deviceId query parameters.
func PathHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := usecases.PathQuery{
			From:     c.Query("from"),
			To:       c.Query("to"),
			DeviceID: c.Query("deviceId"),
		}
		result, err := deps.Tracking.GetPath(c.UserContext(), q)
		if err != nil {
			return errFetch(c, err)
		}
		setVersion(c, result.Version)
		return c.JSON(result)
	}
}
