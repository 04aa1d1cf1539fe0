package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lox/weatherfusion/internal/httputil"
	"github.com/lox/weatherfusion/internal/models"
)

const alertsURL = "https://api.weather.gov/alerts/active"

// AlertsClient lists active advisories for a point. Best effort; the
// pipeline treats every failure as "no alerts".
type AlertsClient struct {
	// BaseURL is overridable in tests.
	BaseURL string

	session *httputil.Session
}

func NewAlertsClient(session *httputil.Session) *AlertsClient {
	return &AlertsClient{BaseURL: alertsURL, session: session}
}

type alertFeature struct {
	Properties struct {
		Event       string `json:"event"`
		Severity    string `json:"severity"`
		Expires     string `json:"expires"`
		Instruction string `json:"instruction"`
		Description string `json:"description"`
	} `json:"properties"`
}

type alertsResponse struct {
	Features []alertFeature `json:"features"`
}

// Fetch returns the active alerts for a site. A 404 from the endpoint means
// no alert zone covers the point and yields an empty list, not an error.
func (a *AlertsClient) Fetch(site models.Site) ([]models.AlertSummary, error) {
	url := fmt.Sprintf("%s?point=%.4f,%.4f", a.BaseURL, site.Latitude, site.Longitude)
	body, err := a.session.Get(url)
	if err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var payload alertsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse alerts: %w", err)
	}

	var alerts []models.AlertSummary
	for _, feature := range payload.Features {
		props := feature.Properties
		if props.Event == "" {
			continue
		}
		severity := props.Severity
		if severity == "" {
			severity = "Unknown"
		}
		var expires *time.Time
		if props.Expires != "" {
			if ts, err := time.Parse(time.RFC3339, props.Expires); err == nil {
				expires = &ts
			}
		}
		instruction := props.Instruction
		if instruction == "" {
			instruction = props.Description
		}
		alerts = append(alerts, models.AlertSummary{
			Headline:    props.Event,
			Severity:    severity,
			Expires:     expires,
			Instruction: instruction,
		})
	}
	return alerts, nil
}
