// Package archive holds the archive record produced by the station engine at
// every archive interval.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"idokep-uploader/internal/units"
)

// Record is one periodic snapshot of station sensor readings.
// Fields maps observation type (outTemp, windSpeed, ...) to its value;
// a nil value means the sensor reported nothing for this interval.
type Record struct {
	DateTime int64
	USUnits  units.System
	Interval int
	Fields   map[string]*float64
}

// Time returns DateTime as a time.Time.
func (r Record) Time() time.Time {
	return time.Unix(r.DateTime, 0)
}

// Get returns the value of field and whether it is present and non-nil.
func (r Record) Get(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Has reports whether field is a key of the record, even if its value is nil.
func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// Set stores v under field. Passing nil records an explicit missing value.
func (r *Record) Set(field string, v *float64) {
	if r.Fields == nil {
		r.Fields = make(map[string]*float64)
	}
	r.Fields[field] = v
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]*float64, len(r.Fields))
	for k, v := range r.Fields {
		if v == nil {
			out.Fields[k] = nil
			continue
		}
		c := *v
		out.Fields[k] = &c
	}
	return out
}

// ToMetricWX returns a copy of the record converted to the metric-wx unit system.
func (r Record) ToMetricWX() (Record, error) {
	fields, err := units.ConvertFields(r.Fields, r.USUnits)
	if err != nil {
		return Record{}, err
	}
	out := r
	out.USUnits = units.MetricWX
	out.Fields = fields
	return out, nil
}

// UnmarshalJSON decodes the flat object the engine publishes, e.g.
//
//	{"dateTime": 1700000000, "usUnits": 17, "interval": 5, "outTemp": 21.3, "windGust": null}
//
// Non-numeric fields are ignored.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	dt, ok := raw["dateTime"]
	if !ok {
		return errors.New("dateTime is required")
	}
	var ts float64
	if err := json.Unmarshal(dt, &ts); err != nil {
		return fmt.Errorf("dateTime: %w", err)
	}

	uu, ok := raw["usUnits"]
	if !ok {
		return errors.New("usUnits is required")
	}
	var sys int
	if err := json.Unmarshal(uu, &sys); err != nil {
		return fmt.Errorf("usUnits: %w", err)
	}
	if !units.System(sys).Valid() {
		return fmt.Errorf("usUnits: unknown unit system %d", sys)
	}

	var interval int
	if iv, ok := raw["interval"]; ok {
		if err := json.Unmarshal(iv, &interval); err != nil {
			return fmt.Errorf("interval: %w", err)
		}
	}

	fields := make(map[string]*float64, len(raw))
	for k, v := range raw {
		switch k {
		case "dateTime", "usUnits", "interval":
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			fields[k] = nil
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			continue
		}
		fields[k] = &f
	}

	*r = Record{
		DateTime: int64(ts),
		USUnits:  units.System(sys),
		Interval: interval,
		Fields:   fields,
	}
	return nil
}

// MarshalJSON encodes the record back into the flat engine format.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["dateTime"] = r.DateTime
	out["usUnits"] = int(r.USUnits)
	if r.Interval != 0 {
		out["interval"] = r.Interval
	}
	return json.Marshal(out)
}

