package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository"
)

// createRequest mirrors the snapshot fields accepted on create.
type createRequest struct {
	Title             string                    `json:"title"`
	Description       string                    `json:"description"`
	StartTime         time.Time                 `json:"start_time"`
	EndTime           time.Time                 `json:"end_time"`
	Location          *string                   `json:"location"`
	IsRecurring       bool                      `json:"is_recurring"`
	RecurrencePattern *domain.RecurrencePattern `json:"recurrence_pattern"`
	RecurrenceEndDate *time.Time                `json:"recurrence_end_date"`
	Metadata          map[string]any            `json:"metadata"`
}

func (r createRequest) snapshot() domain.EventSnapshot {
	return domain.EventSnapshot{
		Title:             r.Title,
		Description:       r.Description,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		Location:          r.Location,
		IsRecurring:       r.IsRecurring,
		RecurrencePattern: r.RecurrencePattern,
		RecurrenceEndDate: r.RecurrenceEndDate,
		Metadata:          r.Metadata,
	}
}

// batchItemResponse is one positional outcome of a batch create.
type batchItemResponse struct {
	Event *domain.Event  `json:"event,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

// decodePatch builds a typed patch from a partial JSON body. Key presence is
// what marks a field as set; an explicit null on a nullable field clears it,
// which a plain struct decode could not distinguish from absence.
func decodePatch(body io.Reader) (domain.EventPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return domain.EventPatch{}, domain.Validation("invalid request body")
	}

	var patch domain.EventPatch
	for key, value := range raw {
		var err error
		switch key {
		case "title":
			err = setField(value, &patch.Title)
		case "description":
			err = setField(value, &patch.Description)
		case "start_time":
			err = setField(value, &patch.StartTime)
		case "end_time":
			err = setField(value, &patch.EndTime)
		case "location":
			err = setField(value, &patch.Location)
		case "is_recurring":
			err = setField(value, &patch.IsRecurring)
		case "recurrence_pattern":
			err = setField(value, &patch.RecurrencePattern)
		case "recurrence_end_date":
			err = setField(value, &patch.RecurrenceEndDate)
		case "metadata":
			err = setField(value, &patch.Metadata)
		default:
			return domain.EventPatch{}, domain.Validation("unknown field " + key)
		}
		if err != nil {
			return domain.EventPatch{}, domain.Validation("invalid value for field " + key)
		}
	}
	return patch, nil
}

func setField[T any](raw json.RawMessage, out *domain.Optional[T]) error {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}
	*out = domain.Some(value)
	return nil
}

func parseEventFilter(r *http.Request) (repository.EventFilter, error) {
	query := r.URL.Query()
	filter := repository.EventFilter{Limit: 50}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return repository.EventFilter{}, domain.Validation("from must be RFC3339")
		}
		filter.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return repository.EventFilter{}, domain.Validation("to must be RFC3339")
		}
		filter.To = &to
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			return repository.EventFilter{}, domain.Validation("limit must be between 1 and 500")
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return repository.EventFilter{}, domain.Validation("offset must not be negative")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func parseListOptions(r *http.Request) (repository.ListOptions, error) {
	query := r.URL.Query()
	opts := repository.ListOptions{
		Cursor:   query.Get("cursor"),
		PageSize: 50,
	}
	if raw := query.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > 200 {
			return repository.ListOptions{}, domain.Validation("page_size must be between 1 and 200")
		}
		opts.PageSize = size
	}
	switch query.Get("order") {
	case "", "asc":
	case "desc":
		opts.Descending = true
	default:
		return repository.ListOptions{}, domain.Validation("order must be asc or desc")
	}
	return opts, nil
}
