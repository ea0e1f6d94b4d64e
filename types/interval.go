package types

import "time"

type Interval string

const (
	OneMinute     Interval = "1"
	FiveMinutes   Interval = "5"
	ThirtyMinutes Interval = "30"
	Hour          Interval = "60"
	FourHours     Interval = "240"
	Day           Interval = "D"
	Week          Interval = "W"
)

var IntervalToTime = map[Interval]time.Duration{
	OneMinute:     time.Minute,
	FiveMinutes:   time.Minute * 5,
	ThirtyMinutes: time.Minute * 30,
	Hour:          time.Hour,
	FourHours:     time.Hour * 4,
	Day:           time.Hour * 24,
	Week:          time.Hour * 24 * 7,
}

var ConvertInterval = map[string]Interval{
	"1":   OneMinute,
	"5":   FiveMinutes,
	"30":  ThirtyMinutes,
	"60":  Hour,
	"240": FourHours,
	"D":   Day,
	"W":   Week,
}
