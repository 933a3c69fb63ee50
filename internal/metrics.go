package internal

import (
	"expvar"
	"net/http"
)

var (
	requestsTotal = expvar.NewMap("hookfeed_requests_total")
	storedTotal   = expvar.NewMap("hookfeed_events_stored_total")
	droppedTotal  = expvar.NewMap("hookfeed_events_dropped_total")
	storeErrors   = expvar.NewMap("hookfeed_store_errors_total")
	publishErrors = expvar.NewMap("hookfeed_publish_errors_total")
)

// requestCategories are the event headers counted under their own key.
var requestCategories = map[string]struct{}{
	"push":         {},
	"pull_request": {},
	"ping":         {},
}

// IncRequest counts a delivery by event header. Headers outside requestCategories
// share the "other" key so callers cannot grow the map.
func IncRequest(category string) {
	requestsTotal.Add(requestLabel(category), 1)
}

func requestLabel(category string) string {
	if category == "" {
		return "none"
	}
	if _, ok := requestCategories[category]; ok {
		return category
	}
	return "other"
}

func IncStored(action string) {
	storedTotal.Add(action, 1)
}

func IncDropped(reason string) {
	droppedTotal.Add(reason, 1)
}

func IncStoreError(op string) {
	storeErrors.Add(op, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}

// MetricsHandler serves every expvar variable as JSON.
func MetricsHandler() http.Handler {
	return expvar.Handler()
}
