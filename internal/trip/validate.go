package trip

import (
	"bytes"
	"encoding/json"
	"math"
)

// Validate checks a summary before it is allowed near storage. A zero
// duration is accepted here; analyzer summaries are already clamped to >= 1.
func Validate(s Summary, userID int64) error {
	switch {
	case userID <= 0,
		s.TripDurationMinutes < 0,
		s.IncidentCount < 0,
		s.AverageSpeedKmh <= 0,
		s.MaxSpeedKmh <= 0,
		s.MaxSpeedKmh < s.AverageSpeedKmh:
		return ErrInvalidParameters
	}
	return nil
}

var uploadFields = []string{"tripDuration", "incidentCount", "averageSpeed", "maxSpeed"}

// ParseUpload decodes a PUT /trip-score body. Every field must be a JSON
// integer, unknown fields are rejected, and the speeds and duration must be
// positive with maxSpeed >= averageSpeed. incidentCount is only required to
// be an integer here; its range is Validate's concern. Values must fit the
// INTEGER columns they are stored in.
func ParseUpload(body []byte) (Summary, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return Summary{}, ErrInvalidBody
	}
	if len(raw) != len(uploadFields) {
		return Summary{}, ErrInvalidBody
	}

	values := make(map[string]int, len(uploadFields))
	for _, field := range uploadFields {
		n, ok := raw[field].(json.Number)
		if !ok {
			return Summary{}, ErrInvalidBody
		}
		v, err := n.Int64()
		if err != nil || v > math.MaxInt32 || v < math.MinInt32 {
			return Summary{}, ErrInvalidBody
		}
		values[field] = int(v)
	}

	s := Summary{
		TripDurationMinutes: values["tripDuration"],
		IncidentCount:       values["incidentCount"],
		AverageSpeedKmh:     values["averageSpeed"],
		MaxSpeedKmh:         values["maxSpeed"],
	}
	if s.TripDurationMinutes <= 0 || s.AverageSpeedKmh <= 0 || s.MaxSpeedKmh <= 0 || s.MaxSpeedKmh < s.AverageSpeedKmh {
		return Summary{}, ErrInvalidBody
	}
	return s, nil
}
