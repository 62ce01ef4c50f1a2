package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/k3suav/antenna-scan/pkg/config"
	"github.com/k3suav/antenna-scan/pkg/logging"
	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/k3suav/antenna-scan/pkg/scan"
	"github.com/sirupsen/logrus"
)

type options struct {
	latitude, longitude, altitude float64
	heading                       float64
	distance                      float64
	frequency, length             float64
	points, arcs                  int
	speed                         float64
	margin                        time.Duration
	format                        string
}

func main() {
	var o options
	flag.Float64Var(&o.latitude, "lat", 0, "antenna latitude (degrees)")
	flag.Float64Var(&o.longitude, "lon", 0, "antenna longitude (degrees)")
	flag.Float64Var(&o.altitude, "alt", 0, "antenna altitude (meters AMSL)")
	flag.Float64Var(&o.heading, "heading", 0, "antenna boresight compass heading (degrees)")
	flag.Float64Var(&o.distance, "distance", 0, "scan radius in meters, derived from -freq and -length when 0")
	flag.Float64Var(&o.frequency, "freq", 0, "antenna frequency (Hz)")
	flag.Float64Var(&o.length, "length", 0, "antenna length (meters)")
	flag.IntVar(&o.points, "points", 3, "waypoints per arc (odd, >= 3)")
	flag.IntVar(&o.arcs, "arcs", 1, "number of arcs")
	flag.Float64Var(&o.speed, "speed", 1, "ground speed used for leg estimates (m/s)")
	flag.DurationVar(&o.margin, "margin", 500*time.Millisecond, "margin added to every leg estimate")
	flag.StringVar(&o.format, "format", "json", "output format (json, csv)")
	flag.Parse()

	// Logs go to stderr so stdout stays machine readable
	log, _ := logging.New(config.AgentConfig{LogLevel: "info"})
	log.SetOutput(os.Stderr)

	plan, times, err := buildPlan(o)
	if err != nil {
		log.WithError(err).Fatal("Failed to generate scan plan")
	}

	log.WithFields(logrus.Fields{
		"waypoints":        plan.Len(),
		"farFieldDistance": plan.FarFieldDistance,
		"chord":            fmt.Sprintf("%.2fm", scan.ChordDistance(plan)),
		"firstLeg":         times.First,
		"nextLeg":          times.Next,
	}).Info("Scan plan generated")

	if err := write(os.Stdout, o.format, plan, times); err != nil {
		log.WithError(err).Fatal("Failed to write scan plan")
	}
}

func buildPlan(o options) (*models.ScanPlan, scan.TravelTimes, error) {
	distance := o.distance
	if distance <= 0 {
		if o.frequency <= 0 {
			return nil, scan.TravelTimes{}, models.ErrInvalidFrequency
		}
		if o.length <= 0 {
			return nil, scan.TravelTimes{}, models.ErrInvalidLength
		}
		cfg := config.Config{Antenna: config.AntennaConfig{FrequencyHz: o.frequency, LengthMeters: o.length}}
		distance = cfg.FarFieldDistance()
	}

	plan, err := scan.Generate(models.ScanConfig{
		FarFieldDistance: distance,
		PointsPerArc:     o.points,
		NumberOfArcs:     o.arcs,
		Antenna:          models.GeoPoint{Latitude: o.latitude, Longitude: o.longitude, Altitude: o.altitude},
		Heading:          o.heading,
	})
	if err != nil {
		return nil, scan.TravelTimes{}, err
	}
	if o.speed <= 0 {
		return nil, scan.TravelTimes{}, fmt.Errorf("speed must be > 0")
	}
	return plan, scan.EstimateTravelTimes(plan, o.speed, o.margin), nil
}

type jsonPlan struct {
	*models.ScanPlan
	FirstLegSeconds float64 `json:"firstLegSeconds"`
	NextLegSeconds  float64 `json:"nextLegSeconds"`
}

func write(w io.Writer, format string, plan *models.ScanPlan, times scan.TravelTimes) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonPlan{
			ScanPlan:        plan,
			FirstLegSeconds: times.First.Seconds(),
			NextLegSeconds:  times.Next.Seconds(),
		})
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"index", "arc", "position", "angle", "latitude", "longitude", "altitude", "leg_seconds"}); err != nil {
			return err
		}
		for i, wp := range plan.Waypoints {
			arc, pos := plan.ArcOf(i)
			if err := cw.Write([]string{
				strconv.Itoa(i),
				strconv.Itoa(arc),
				strconv.Itoa(pos),
				strconv.FormatFloat(plan.Bearings[i], 'f', 3, 64),
				strconv.FormatFloat(wp.Latitude, 'f', 8, 64),
				strconv.FormatFloat(wp.Longitude, 'f', 8, 64),
				strconv.FormatFloat(wp.Altitude, 'f', 2, 64),
				strconv.FormatFloat(times.For(i).Seconds(), 'f', 2, 64),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
