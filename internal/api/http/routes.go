package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/household-energy-dashboard/internal/household"
	"github.com/i474232898/household-energy-dashboard/internal/store"
)

var validate = validator.New()

// Service is what the routes need from the refresh orchestrator.
type Service interface {
	Snapshot() *household.Snapshot
	Table() *household.Table
	State() household.State
	Refresh(ctx context.Context) error
}

// Published reports what the query layer is currently serving.
type Published interface {
	Latest() (*household.Snapshot, error)
	Generation() int64
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Service, published Published) {
	v1 := app.Group("/api/v1")

	v1.Get("/sensors", func(c *fiber.Ctx) error {
		table := service.Table()
		return c.JSON(fiber.Map{
			"sensors": table.Sensors(),
		})
	})

	v1.Get("/sensors/:sensor/dates", func(c *fiber.Ctx) error {
		q, err := parseSensorQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table := service.Table()
		return c.JSON(fiber.Map{
			"sensor": q.Sensor,
			"dates":  table.Dates(q.Sensor),
		})
	})

	v1.Get("/sensors/:sensor/dates/:date/appliances", func(c *fiber.Ctx) error {
		var q dayQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table := service.Table()
		return c.JSON(fiber.Map{
			"sensor":     q.Sensor,
			"date":       q.Date,
			"appliances": table.ApplianceColumns(q.Sensor, q.Date),
		})
	})

	v1.Get("/sensors/:sensor/dates/:date/series", func(c *fiber.Ctx) error {
		var q seriesQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table := service.Table()
		points := table.Series(q.Sensor, q.Date, q.Appliance)

		resp := fiber.Map{
			"sensor":    q.Sensor,
			"date":      q.Date,
			"appliance": q.Appliance,
			"points":    points,
		}
		if !table.HasRows(q.Sensor, q.Date) {
			resp["message"] = fmt.Sprintf("No data available for %s on %s.", q.Sensor, q.Date)
		}
		return c.JSON(resp)
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		resp := fiber.Map{
			"state":      service.State().String(),
			"published":  false,
			"generation": published.Generation(),
		}
		snap, err := published.Latest()
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			resp["published"] = true
			resp["cycle_id"] = snap.CycleID
			resp["published_at"] = snap.PublishedAt
			resp["objects"] = snap.Objects
			resp["skipped"] = snap.Skipped
			resp["rows"] = snap.Table.Len()
			resp["columns"] = snap.Table.Columns()
		}
		return c.JSON(resp)
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		err := service.Refresh(c.UserContext())
		if err != nil {
			if errors.Is(err, household.ErrRefreshInProgress) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusBadGateway, "refresh failed; previous data kept: "+err.Error())
		}

		snap := service.Snapshot()
		return c.JSON(fiber.Map{
			"cycle_id": snap.CycleID,
			"rows":     snap.Table.Len(),
		})
	})
}

// sensorQuery identifies a household.
type sensorQuery struct {
	Sensor string `validate:"required"`
}

func parseSensorQuery(c *fiber.Ctx) (sensorQuery, error) {
	var q sensorQuery

	sensor, err := url.PathUnescape(c.Params("sensor"))
	if err != nil {
		return q, err
	}
	q.Sensor = sensor

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// dayQuery narrows a sensor to one calendar day.
type dayQuery struct {
	sensorQuery
	Date household.Date
}

func (d *dayQuery) bind(c *fiber.Ctx) error {
	sq, err := parseSensorQuery(c)
	if err != nil {
		return err
	}
	d.sensorQuery = sq

	date, err := household.ParseDate(c.Params("date"))
	if err != nil {
		return err
	}
	d.Date = date
	return nil
}

// seriesQuery holds parameters for the series endpoint. Appliance names
// contain spaces, so they travel as a query parameter.
type seriesQuery struct {
	dayQuery
	Appliance string `validate:"required"`
}

func (s *seriesQuery) bind(c *fiber.Ctx) error {
	if err := s.dayQuery.bind(c); err != nil {
		return err
	}
	s.Appliance = c.Query("appliance")

	return validate.Struct(s)
}
