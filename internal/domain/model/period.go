package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timespan K 线周期单位
type Timespan string

const (
	Minute Timespan = "minute"
	Hour   Timespan = "hour"
	Day    Timespan = "day"
	Week   Timespan = "week"
	Month  Timespan = "month"
	Year   Timespan = "year"
)

// Period 周期，值比较
type Period struct {
	Multiplier int
	Timespan   Timespan
}

var shortUnits = map[Timespan]string{
	Minute: "m",
	Hour:   "h",
	Day:    "d",
	Week:   "w",
	Month:  "M",
	Year:   "y",
}

// String 例如 1m / 4h / 1d / 1M
func (p Period) String() string {
	return strconv.Itoa(p.Multiplier) + shortUnits[p.Timespan]
}

// Valid 乘数大于 0 且单位已知
func (p Period) Valid() bool {
	_, ok := shortUnits[p.Timespan]
	return p.Multiplier > 0 && ok
}

// Duration 近似时长；月按 30 天、年按 365 天
func (p Period) Duration() time.Duration {
	var unit time.Duration
	switch p.Timespan {
	case Minute:
		unit = time.Minute
	case Hour:
		unit = time.Hour
	case Day:
		unit = 24 * time.Hour
	case Week:
		unit = 7 * 24 * time.Hour
	case Month:
		unit = 30 * 24 * time.Hour
	case Year:
		unit = 365 * 24 * time.Hour
	}
	return time.Duration(p.Multiplier) * unit
}

// ParsePeriod 支持 "5m" "1h" "1d" "1w" "1M" "1y"，
// 以及 TradingView 风格的 "1" "60" "240" "1D" "1W" "1M" "12M"
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Period{}, fmt.Errorf("empty period")
	}

	// 纯数字：分钟数
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return Period{}, fmt.Errorf("invalid period %q", s)
		}
		if n%60 == 0 {
			return Period{Multiplier: n / 60, Timespan: Hour}, nil
		}
		return Period{Multiplier: n, Timespan: Minute}, nil
	}

	num, unit := s[:len(s)-1], s[len(s)-1:]
	n := 1
	if num != "" {
		v, err := strconv.Atoi(num)
		if err != nil || v <= 0 {
			return Period{}, fmt.Errorf("invalid period %q", s)
		}
		n = v
	}

	var ts Timespan
	switch unit {
	case "m":
		ts = Minute
	case "h", "H":
		ts = Hour
	case "d", "D":
		ts = Day
	case "w", "W":
		ts = Week
	case "M":
		ts = Month
	case "y", "Y":
		ts = Year
	default:
		return Period{}, fmt.Errorf("invalid period unit %q", s)
	}
	return Period{Multiplier: n, Timespan: ts}, nil
}

// MustParsePeriod 仅用于常量表
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}
