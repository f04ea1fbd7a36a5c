package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// EventCreatedResponse is returned by POST /events/
type EventCreatedResponse struct {
	Message   string `json:"message"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
}

// EventEnrichedResponse is returned by PUT /events/{event_id}/enrich/
type EventEnrichedResponse struct {
	Message       string        `json:"message"`
	EventID       string        `json:"event_id"`
	EnrichedEvent *events.Event `json:"enriched_event"`
	Status        string        `json:"status"`
}

// EventDetailsResponse is returned by GET /events/{event_id}/
type EventDetailsResponse struct {
	Message   string        `json:"message"`
	EventData *events.Event `json:"event_data"`
}

// eventNotFound is the 404 body for event routes
type eventNotFound struct {
	Error   string `json:"error"`
	EventID string `json:"event_id"`
}

func writeEventNotFound(w http.ResponseWriter, id string) {
	_ = httputil.WriteJSON(w, http.StatusNotFound, eventNotFound{Error: "Event not found", EventID: id})
}

// nonEmptyString reports whether v is a string with visible content
func nonEmptyString(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// createEvent handles POST /events/
func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.ParseJSONObjectOrError(w, r)
	if !ok {
		return
	}

	var missing []string
	for _, field := range []string{"event_type", "user_id"} {
		if _, present := body[field]; !present {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		httputil.WriteBadRequest(w, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	eventType, ok := nonEmptyString(body["event_type"])
	if !ok {
		httputil.WriteBadRequest(w, "event_type must be a non-empty string")
		return
	}
	userID, ok := nonEmptyString(body["user_id"])
	if !ok {
		httputil.WriteBadRequest(w, "user_id must be a non-empty string")
		return
	}

	var sessionID string
	if raw, present := body["session_id"]; present && raw != nil {
		sid, isString := raw.(string)
		if !isString {
			httputil.WriteBadRequest(w, "session_id must be a string")
			return
		}
		sessionID = sid
	}

	properties := map[string]interface{}{}
	if raw, present := body["properties"]; present && raw != nil {
		props, isObject := raw.(map[string]interface{})
		if !isObject {
			httputil.WriteBadRequest(w, "properties must be a JSON object")
			return
		}
		properties = props
	}

	id, err := s.events.StoreEvent(r.Context(), events.StoreRequest{
		EventType:  eventType,
		UserID:     userID,
		SessionID:  sessionID,
		Properties: properties,
	})
	if err != nil {
		writeServiceError(w, r, err, "Platform error", "Failed to process event")
		return
	}

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"event_id":   id,
		"event_type": eventType,
	}).Debug("Event recorded")

	_ = httputil.WriteJSON(w, http.StatusCreated, EventCreatedResponse{
		Message:   "Event successfully recorded",
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Status:    "processed",
	})
}

// getEvent handles GET /events/{event_id}/
func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "event_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid event_id")
		return
	}

	event, found, err := s.events.GetEvent(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "Platform error", "Failed to retrieve event details")
		return
	}
	if !found {
		writeEventNotFound(w, id)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, EventDetailsResponse{
		Message:   "Event details retrieved successfully",
		EventData: event,
	})
}

// enrichEvent handles PUT /events/{event_id}/enrich/
func (s *Server) enrichEvent(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "event_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid event_id")
		return
	}

	body, ok := httputil.ParseJSONObjectOrError(w, r)
	if !ok {
		return
	}

	raw, present := body["additional_properties"]
	if !present {
		httputil.WriteBadRequest(w, "Request must contain 'additional_properties' field")
		return
	}
	additional, isObject := raw.(map[string]interface{})
	if !isObject {
		httputil.WriteBadRequest(w, "additional_properties must be a JSON object")
		return
	}

	found, err := s.events.EnrichEvent(r.Context(), id, additional)
	if err != nil {
		writeServiceError(w, r, err, "Platform error", "Failed to enrich event")
		return
	}
	if !found {
		writeEventNotFound(w, id)
		return
	}

	enriched, found, err := s.events.GetEvent(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "Platform error", "Failed to enrich event")
		return
	}
	if !found {
		// Expired between the write and the read
		writeServiceError(w, r, fmt.Errorf("event %s disappeared after enrichment", id), "Platform error", "Failed to enrich event")
		return
	}

	_ = httputil.WriteJSON(w, http.StatusOK, EventEnrichedResponse{
		Message:       "Event successfully enriched",
		EventID:       id,
		EnrichedEvent: enriched,
		Status:        "updated",
	})
}
