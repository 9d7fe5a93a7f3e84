package ws

import (
	"time"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

type EventType string

const (
	EventFaceMatched EventType = "face.matched"
)

type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type AlertLevel string

const (
	LevelHigh   AlertLevel = "HIGH"
	LevelMedium AlertLevel = "MEDIUM"
)

// highConfidence is the confidence percentage from which an alert is HIGH.
const highConfidence = 70

// FaceMatchedData is the payload of EventFaceMatched, shaped for the
// dashboard's alert list.
type FaceMatchedData struct {
	CameraID   string                 `json:"camera_id"`
	URN        string                 `json:"urn"`
	Details    map[string]interface{} `json:"details,omitempty"`
	BBox       domain.BoundingBox     `json:"bbox"`
	Distance   float64                `json:"distance"`
	Confidence int                    `json:"confidence"`
	Level      AlertLevel             `json:"level"`
	Message    string                 `json:"message"`
}
