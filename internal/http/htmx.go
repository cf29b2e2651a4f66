package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	hxRequest = "HX-Request"
	hxBoosted = "HX-Boosted"
	hxRefresh = "HX-Refresh"
	hxTrigger = "HX-Trigger"
)

func headerTrue(h http.Header, key string) bool {
	return strings.EqualFold(strings.TrimSpace(h.Get(key)), "true")
}

// IsHTMX reports whether htmx issued the request.
func IsHTMX(r *http.Request) bool { return headerTrue(r.Header, hxRequest) }

// WantsPartial reports whether to render only the page content. Boosted navigation swaps the
// whole body, so it still gets the layout.
func WantsPartial(r *http.Request) bool {
	return IsHTMX(r) && !headerTrue(r.Header, hxBoosted)
}

// SetHXRefresh makes htmx reload the page once the response is processed.
func SetHXRefresh(w http.ResponseWriter) { w.Header().Set(hxRefresh, "true") }

// SetHXTrigger adds event to the HX-Trigger header, keeping events set earlier in the same
// response. A nil payload is sent as true.
func SetHXTrigger(w http.ResponseWriter, event string, payload any) {
	events := map[string]any{}
	if existing := w.Header().Get(hxTrigger); existing != "" {
		if err := json.Unmarshal([]byte(existing), &events); err != nil {
			// A bare event name rather than a JSON object.
			events = map[string]any{existing: true}
		}
	}
	if payload == nil {
		payload = true
	}
	events[event] = payload

	encoded, err := json.Marshal(events)
	if err != nil {
		encoded, _ = json.Marshal(map[string]bool{event: true})
	}
	w.Header().Set(hxTrigger, string(encoded))
}
