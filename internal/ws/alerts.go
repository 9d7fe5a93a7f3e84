package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/aerowatch/internal/domain"
)

// Sink receives every alert event that passes the cooldown.
type Sink interface {
	Publish(e Event)
}

// Alerts turns matched faces from stream sessions into face.matched
// events. The same identity on the same camera is reported at most once
// per cooldown, however many sessions watch that camera.
type Alerts struct {
	sinks    []Sink
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[alertKey]time.Time
}

type alertKey struct {
	camera string
	urn    string
}

// pruneAt is the map size from which expired entries are swept.
const pruneAt = 1024

func NewAlerts(cooldown time.Duration, sinks ...Sink) *Alerts {
	return &Alerts{
		sinks:    sinks,
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[alertKey]time.Time),
	}
}

func (a *Alerts) FaceMatched(cameraID string, d domain.Detection) {
	if !d.Matched() {
		return
	}
	if !a.allow(alertKey{camera: cameraID, urn: d.Identity.URN}) {
		return
	}

	event := Event{
		Type:      EventFaceMatched,
		Data:      newFaceMatchedData(cameraID, d),
		Timestamp: a.now(),
	}
	for _, s := range a.sinks {
		s.Publish(event)
	}
}

func (a *Alerts) allow(key alertKey) bool {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if at, ok := a.last[key]; ok && now.Sub(at) < a.cooldown {
		return false
	}
	a.last[key] = now

	if len(a.last) >= pruneAt {
		for k, at := range a.last {
			if now.Sub(at) >= a.cooldown {
				delete(a.last, k)
			}
		}
	}
	return true
}

func newFaceMatchedData(cameraID string, d domain.Detection) FaceMatchedData {
	conf := d.Confidence()
	level := LevelMedium
	if conf >= highConfidence {
		level = LevelHigh
	}

	return FaceMatchedData{
		CameraID:   cameraID,
		URN:        d.Identity.URN,
		Details:    d.Identity.Details,
		BBox:       d.Box,
		Distance:   d.Distance,
		Confidence: conf,
		Level:      level,
		Message:    fmt.Sprintf("%s seen on %s (%d%%)", d.Identity.URN, cameraID, conf),
	}
}
