package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bjaus/topicroute"
)

// heatAlertCelsius is the reading above which a heat alert is published.
const heatAlertCelsius = 35

// Forecast is the payload of MqttWeatherForecast/{zipCode}/temperature.
type Forecast struct {
	Celsius float64 `json:"celsius"`
	Summary string  `json:"summary"`
}

// Validate rejects readings no weather station can produce.
func (f Forecast) Validate() error {
	if f.Celsius < -90 || f.Celsius > 60 {
		return fmt.Errorf("temperature %.1f°C out of range", f.Celsius)
	}
	return nil
}

// HeatAlert is published on MqttWeatherForecast/{zipCode}/alerts.
type HeatAlert struct {
	ZipCode string  `json:"zip_code"`
	Celsius float64 `json:"celsius"`
}

// WeatherController handles forecasts for one zip code per message.
type WeatherController struct {
	topicroute.BaseController
	ZipCode string

	logger *slog.Logger
}

func newWeatherController(ctx context.Context, cc *topicroute.ControllerContext, services topicroute.ServiceResolver) (any, error) {
	logger, err := topicroute.Resolve[*slog.Logger](ctx, services)
	if err != nil {
		return nil, err
	}
	return &WeatherController{
		BaseController: topicroute.NewBaseController(cc),
		logger:         logger.With("controller", "WeatherController", "dispatch_id", cc.DispatchID),
	}, nil
}

// Temperature records a forecast and raises a heat alert for hot readings.
func (c *WeatherController) Temperature(ctx context.Context, args topicroute.Args) error {
	f := topicroute.Arg[Forecast](args, "forecast")
	c.logger.InfoContext(ctx, "forecast received",
		"zip_code", c.ZipCode,
		"celsius", f.Celsius,
		"client_id", c.ClientID(),
	)

	if f.Celsius <= heatAlertCelsius || c.Server() == nil {
		return c.Ok()
	}

	alert, err := json.Marshal(HeatAlert{ZipCode: c.ZipCode, Celsius: f.Celsius})
	if err != nil {
		return err
	}
	if err := c.Server().Publish(ctx, "MqttWeatherForecast/"+c.ZipCode+"/alerts", alert); err != nil {
		return fmt.Errorf("publish heat alert: %w", err)
	}
	return c.Ok()
}

// Humidity accepts humidity readings as a plain percentage field.
func (c *WeatherController) Humidity(ctx context.Context, args topicroute.Args) error {
	pct := topicroute.Arg[float64](args, "percent")
	if pct < 0 || pct > 100 {
		return c.BadMessage()
	}
	return c.Ok()
}

// registerWeatherRoutes registers the demo weather controller.
func registerWeatherRoutes(r *topicroute.Router) error {
	ctrl := &topicroute.Controller{
		Name:   "WeatherController",
		Prefix: "MqttWeatherForecast/{zipCode}",
		New:    newWeatherController,
		Members: []topicroute.Member{{
			Name:  "ZipCode",
			Param: "zipCode",
			Set: func(c any, v string) error {
				c.(*WeatherController).ZipCode = v
				return nil
			},
		}},
	}

	return r.Register(ctrl,
		&topicroute.Handler{
			Template: "temperature",
			Params:   []topicroute.Param{topicroute.Payload[Forecast]("forecast")},
			Action:   topicroute.Method((*WeatherController).Temperature),
		},
		&topicroute.Handler{
			Template: "humidity",
			Params:   []topicroute.Param{topicroute.Field("percent", "percent", topicroute.KindFloat64)},
			Guard:    topicroute.HasFields("percent"),
			Action:   topicroute.Method((*WeatherController).Humidity),
		},
	)
}
