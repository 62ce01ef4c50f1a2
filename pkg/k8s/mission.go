package k8s

import (
	"time"

	"github.com/k3suav/antenna-scan/pkg/models"
	"github.com/k3suav/antenna-scan/pkg/supervisor"
)

// MissionSpec is the spec of a ScanMission resource
type MissionSpec struct {
	MissionName      string          `json:"missionName"`
	NodeName         string          `json:"nodeName,omitempty"`
	Antenna          models.GeoPoint `json:"antenna"`
	Heading          float64         `json:"heading"`
	FrequencyHz      float64         `json:"frequencyHz,omitempty"`
	FarFieldDistance float64         `json:"farFieldDistance"`
	PointsPerArc     int             `json:"pointsPerArc"`
	NumberOfArcs     int             `json:"numberOfArcs"`
	Waypoints        int             `json:"waypoints"`
}

// MissionStatus is the status subresource of a ScanMission
type MissionStatus struct {
	Phase         string `json:"phase"`
	State         string `json:"state"`
	WaypointIndex int    `json:"waypointIndex"`
	Reason        string `json:"reason,omitempty"`
	LastUpdated   string `json:"lastUpdated"`
}

// NewMissionSpec describes a planned mission.
func NewMissionSpec(mission, node string, frequencyHz float64, plan *models.ScanPlan) *MissionSpec {
	return &MissionSpec{
		MissionName:      mission,
		NodeName:         node,
		Antenna:          plan.Antenna,
		Heading:          plan.Heading,
		FrequencyHz:      frequencyHz,
		FarFieldDistance: plan.FarFieldDistance,
		PointsPerArc:     plan.PointsPerArc,
		NumberOfArcs:     plan.NumberOfArcs,
		Waypoints:        plan.Len(),
	}
}

// StatusFor converts a transition into the mission status it leaves behind.
func StatusFor(t supervisor.Transition) MissionStatus {
	return MissionStatus{
		Phase:         t.To.Kind.String(),
		State:         t.To.String(),
		WaypointIndex: t.To.WaypointIndex,
		Reason:        t.Reason,
		LastUpdated:   t.At.UTC().Format(time.RFC3339),
	}
}
