// Package units knows the unit systems weather archive records are reported in
// and converts record fields to the metric-wx system (°C, m/s, hPa, mm).
package units

import "fmt"

// System is the unit system tag carried by every archive record (usUnits).
type System int

const (
	US       System = 1
	Metric   System = 16
	MetricWX System = 17
)

func (s System) String() string {
	switch s {
	case US:
		return "US"
	case Metric:
		return "METRIC"
	case MetricWX:
		return "METRICWX"
	default:
		return fmt.Sprintf("System(%d)", int(s))
	}
}

// Valid reports whether s is one of the known unit systems.
func (s System) Valid() bool {
	return s == US || s == Metric || s == MetricWX
}

// Group is a family of observation types sharing a unit.
type Group int

const (
	GroupNone Group = iota
	GroupTemperature
	GroupSpeed
	GroupPressure
	GroupRain
	GroupRainRate
)

var fieldGroups = map[string]Group{
	"outTemp":    GroupTemperature,
	"inTemp":     GroupTemperature,
	"dewpoint":   GroupTemperature,
	"windchill":  GroupTemperature,
	"heatindex":  GroupTemperature,
	"appTemp":    GroupTemperature,
	"extraTemp1": GroupTemperature,
	"extraTemp2": GroupTemperature,
	"extraTemp3": GroupTemperature,
	"soilTemp1":  GroupTemperature,
	"soilTemp2":  GroupTemperature,
	"soilTemp3":  GroupTemperature,
	"soilTemp4":  GroupTemperature,
	"leafTemp1":  GroupTemperature,
	"leafTemp2":  GroupTemperature,

	"windSpeed":   GroupSpeed,
	"windGust":    GroupSpeed,
	"windSpeed10": GroupSpeed,

	"barometer": GroupPressure,
	"pressure":  GroupPressure,
	"altimeter": GroupPressure,

	"rain":      GroupRain,
	"hourRain":  GroupRain,
	"rain24":    GroupRain,
	"dayRain":   GroupRain,
	"monthRain": GroupRain,
	"yearRain":  GroupRain,
	"totalRain": GroupRain,

	"rainRate": GroupRainRate,
}

// GroupOf returns the unit group of an observation type. Types without a
// group (humidity, directions, radiation...) are never converted.
func GroupOf(field string) Group {
	return fieldGroups[field]
}

// ToMetricWX converts a single value of the given group from system from
// into metric-wx units.
func ToMetricWX(group Group, from System, v float64) (float64, error) {
	if !from.Valid() {
		return 0, fmt.Errorf("unknown unit system %d", int(from))
	}
	if from == MetricWX {
		return v, nil
	}

	switch group {
	case GroupTemperature:
		if from == US {
			return (v - 32.0) * 5.0 / 9.0, nil
		}
		return v, nil
	case GroupSpeed:
		if from == US {
			return v * 0.44704, nil // mile_per_hour -> meter_per_second
		}
		return v / 3.6, nil // km_per_hour -> meter_per_second
	case GroupPressure:
		if from == US {
			return v * 33.86389, nil // inHg -> hPa
		}
		return v, nil // mbar == hPa
	case GroupRain, GroupRainRate:
		if from == US {
			return v * 25.4, nil // inch -> mm
		}
		return v * 10.0, nil // cm -> mm
	default:
		return v, nil
	}
}

// ConvertFields returns a copy of fields with every value converted from
// system from into metric-wx. Nil values stay nil.
func ConvertFields(fields map[string]*float64, from System) (map[string]*float64, error) {
	if !from.Valid() {
		return nil, fmt.Errorf("unknown unit system %d", int(from))
	}
	out := make(map[string]*float64, len(fields))
	for name, v := range fields {
		if v == nil {
			out[name] = nil
			continue
		}
		c, err := ToMetricWX(GroupOf(name), from, *v)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", name, err)
		}
		out[name] = &c
	}
	return out, nil
}
