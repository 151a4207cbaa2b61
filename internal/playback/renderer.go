// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"time"

	"github.com/ManuGH/reelflow/internal/schedule"
)

// Layer is one of the two render surfaces used for double buffering.
type Layer string

const (
	LayerA Layer = "A"
	LayerB Layer = "B"
)

// Other returns the opposite layer.
func (l Layer) Other() Layer {
	if l == LayerA {
		return LayerB
	}
	return LayerA
}

// ParseLayer maps "A"/"B" to a Layer.
func ParseLayer(s string) (Layer, bool) {
	switch Layer(s) {
	case LayerA, LayerB:
		return Layer(s), true
	}
	return "", false
}

// Assignment is what a layer is told to render.
type Assignment struct {
	ItemID   string
	Index    int
	Resource schedule.Resource
	// Loop asks the renderer to repeat a video until told otherwise.
	Loop bool
	// Until is when an image will be replaced; zero when it is not rotated.
	Until time.Time
}

// Renderer is the rendering collaborator. Calls must not block.
type Renderer interface {
	// Show assigns a resource to layer. A hidden layer prepares it off screen.
	Show(layer Layer, a Assignment)
	// SetActive makes layer visible and hides the other one.
	SetActive(layer Layer)
	// Clear drops whatever a hidden layer still holds.
	Clear(layer Layer)
}

// EndEvent reports that a video finished on a layer.
type EndEvent struct {
	Layer      Layer
	ItemID     string
	ResourceID string
}
