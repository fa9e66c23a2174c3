package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"geowatch/internal/models"

	"github.com/paulmach/orb"
)

// Finding is a single detector output before persistence.
type Finding struct {
	Severity     string
	AffectedArea models.Polygon
	Confidence   float64
	Description  string
}

// Detector evaluates one satellite image against an AOI geometry. It is a
// replaceable strategy: a real change-detection model slots in behind this
// interface without touching scheduler logic.
type Detector interface {
	Detect(ctx context.Context, geometry models.Polygon, image models.SatelliteImage) ([]Finding, error)
}

// StochasticDetector is the reference placeholder implementation. It flags
// roughly one image in ten with a synthetic finding inside the AOI bounds.
type StochasticDetector struct {
	mu      sync.Mutex
	rng     *rand.Rand
	hitRate float64
}

// NewStochasticDetector creates a placeholder detector with the given seed
func NewStochasticDetector(seed int64) *StochasticDetector {
	return &StochasticDetector{
		rng:     rand.New(rand.NewSource(seed)),
		hitRate: 0.1,
	}
}

// severity weights: low .4, medium .3, high .2, critical .1
var severityCDF = []struct {
	cum      float64
	severity string
}{
	{0.4, models.SeverityLow},
	{0.7, models.SeverityMedium},
	{0.9, models.SeverityHigh},
	{1.0, models.SeverityCritical},
}

// Detect simulates change detection over the image footprint
func (d *StochasticDetector) Detect(_ context.Context, geometry models.Polygon, image models.SatelliteImage) ([]Finding, error) {
	d.mu.Lock()
	hit := d.rng.Float64() < d.hitRate
	roll := d.rng.Float64()
	confidence := 0.70 + d.rng.Float64()*0.25
	d.mu.Unlock()

	if !hit {
		return nil, nil
	}

	severity := models.SeverityLow
	for _, entry := range severityCDF {
		if roll < entry.cum {
			severity = entry.severity
			break
		}
	}

	center := geometry.Bound().Center()
	const offset = 0.001
	affected := orb.Polygon{orb.Ring{
		{center[0] - offset, center[1] - offset},
		{center[0] + offset, center[1] - offset},
		{center[0] + offset, center[1] + offset},
		{center[0] - offset, center[1] + offset},
		{center[0] - offset, center[1] - offset},
	}}

	return []Finding{{
		Severity:     severity,
		AffectedArea: models.Polygon{Polygon: affected},
		Confidence:   confidence,
		Description: fmt.Sprintf(
			"Potential %s encroachment detected through satellite analysis of scene %s. Change detected in vegetation/land use pattern.",
			severity, image.SceneID),
	}}, nil
}
