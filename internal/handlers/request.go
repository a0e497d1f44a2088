package handlers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"geoping/internal/models"

	"github.com/goccy/go-json"
)

// SubmitRequest is the body accepted by POST /api/locations. Required
// numbers are pointers so a missing field is distinguishable from zero.
type SubmitRequest struct {
	DeviceID  string        `json:"device_id" validate:"required"`
	Latitude  *float64      `json:"latitude" validate:"required"`
	Longitude *float64      `json:"longitude" validate:"required"`
	Accuracy  optionalFloat `json:"accuracy"`
	Heading   optionalFloat `json:"heading"`
	Speed     optionalFloat `json:"speed"`
	TS        *float64      `json:"ts" validate:"required,gte=-9e18,lte=9e18"`
}

// UnmarshalJSON matches keys exactly. The decoder's default
// case-insensitive matching would accept "DEVICE_ID" or "TS".
func (req *SubmitRequest) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	targets := map[string]any{
		"device_id": &req.DeviceID,
		"latitude":  &req.Latitude,
		"longitude": &req.Longitude,
		"accuracy":  &req.Accuracy,
		"heading":   &req.Heading,
		"speed":     &req.Speed,
		"ts":        &req.TS,
	}
	for key, dst := range targets {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// Location converts a validated request. Fractional timestamps are
// truncated toward zero.
func (req SubmitRequest) Location() models.Location {
	return models.Location{
		DeviceID:  req.DeviceID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy.Value,
		Heading:   req.Heading.Value,
		Speed:     req.Speed.Value,
		TS:        int64(math.Trunc(*req.TS)),
	}
}

// optionalFloat never fails to decode: a number or a numeric string is
// kept, anything else is stored as null.
type optionalFloat struct {
	Value *float64
}

func (o *optionalFloat) UnmarshalJSON(b []byte) error {
	o.Value = nil

	text := strings.TrimSpace(string(b))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	o.Value = &v
	return nil
}
