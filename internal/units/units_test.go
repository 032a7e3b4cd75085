package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMetricWX(t *testing.T) {
	tests := []struct {
		name  string
		group Group
		from  System
		in    float64
		want  float64
	}{
		{name: "fahrenheit to celsius", group: GroupTemperature, from: US, in: 212, want: 100},
		{name: "celsius unchanged", group: GroupTemperature, from: Metric, in: 21.3, want: 21.3},
		{name: "mph to m/s", group: GroupSpeed, from: US, in: 10, want: 4.4704},
		{name: "km/h to m/s", group: GroupSpeed, from: Metric, in: 36, want: 10},
		{name: "inHg to hPa", group: GroupPressure, from: US, in: 29.92, want: 1013.207},
		{name: "mbar unchanged", group: GroupPressure, from: Metric, in: 1013.2, want: 1013.2},
		{name: "inch to mm", group: GroupRain, from: US, in: 1, want: 25.4},
		{name: "cm to mm", group: GroupRain, from: Metric, in: 0.2, want: 2},
		{name: "rain rate cm/h to mm/h", group: GroupRainRate, from: Metric, in: 1.5, want: 15},
		{name: "metricwx untouched", group: GroupSpeed, from: MetricWX, in: 3.2, want: 3.2},
		{name: "no group untouched", group: GroupNone, from: US, in: 55, want: 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMetricWX(tt.group, tt.from, tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestToMetricWX_UnknownSystem(t *testing.T) {
	_, err := ToMetricWX(GroupTemperature, System(3), 1)
	require.Error(t, err)
}

func TestConvertFields(t *testing.T) {
	temp := 50.0
	hum := 80.0
	fields := map[string]*float64{
		"outTemp":     &temp,
		"outHumidity": &hum,
		"windGust":    nil,
	}

	got, err := ConvertFields(fields, US)
	require.NoError(t, err)

	require.NotNil(t, got["outTemp"])
	assert.InDelta(t, 10.0, *got["outTemp"], 0.0001)
	assert.Equal(t, 80.0, *got["outHumidity"])
	v, ok := got["windGust"]
	assert.True(t, ok)
	assert.Nil(t, v)

	// The input map is not modified.
	assert.Equal(t, 50.0, *fields["outTemp"])
}

func TestGroupOf(t *testing.T) {
	assert.Equal(t, GroupTemperature, GroupOf("outTemp"))
	assert.Equal(t, GroupRain, GroupOf("rain24"))
	assert.Equal(t, GroupNone, GroupOf("windDir"))
	assert.Equal(t, GroupNone, GroupOf("outHumidity"))
}
