// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by engine spans.
const (
	ItemIDKey        = "reelflow.item.id"
	ItemStatusKey    = "reelflow.item.status"
	ResourceIDKey    = "reelflow.resource.id"
	ResourceKindKey  = "reelflow.resource.kind"
	ResourceCountKey = "reelflow.resource.count"
	AdmittedKey      = "reelflow.reconcile.admitted"
	SkippedKey       = "reelflow.reconcile.skipped"
	RetriedKey       = "reelflow.reconcile.retried"
	BytesKey         = "reelflow.download.bytes"
)

// ItemAttributes describes the scheduled item a span works on.
func ItemAttributes(id string, resources int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ItemIDKey, id),
		attribute.Int(ResourceCountKey, resources),
	}
}

// ReconcileAttributes summarizes a reconciliation tick.
func ReconcileAttributes(admitted, skipped, retried int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AdmittedKey, admitted),
		attribute.Int(SkippedKey, skipped),
		attribute.Int(RetriedKey, retried),
	}
}
