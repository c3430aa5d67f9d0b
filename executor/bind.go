package executor

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// convertArg binds a Cucumber Expression capture's string value onto the
// handler parameter's Go type, including time.Time/*time.Location, since a
// BDD runtime's steps routinely assert on dates and times.

var (
	timeLayouts = []string{
		"15:04:05.000",
		"15:04:05",
		"15:04",
		"3:04:05.000pm",
		"3:04:05pm",
		"3:04pm",
	}

	dateLayouts = []string{
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"Jan 2, 2006",
		"January 2, 2006",
	}

	tzOffsetRegex = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})$`)
)

func convertArg(arg string, targetType reflect.Type) (reflect.Value, error) {
	switch targetType {
	case reflect.TypeOf(time.Time{}):
		return convertTime(arg)
	case reflect.TypeOf((*time.Location)(nil)):
		loc, err := parseTimezone(arg)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(loc), nil
	}

	val := reflect.New(targetType).Elem()
	switch targetType.Kind() {
	case reflect.String:
		val.SetString(arg)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		val.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		val.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		val.SetFloat(f)
	case reflect.Bool:
		b, err := parseBool(arg)
		if err != nil {
			return reflect.Value{}, err
		}
		val.SetBool(b)
	default:
		return reflect.Value{}, fmt.Errorf("unsupported step argument type: %s", targetType)
	}
	return val, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("cannot parse %q as bool", s)
	}
}

func parseTimezone(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "UTC" {
		return time.UTC, nil
	}
	if m := tzOffsetRegex.FindStringSubmatch(s); m != nil {
		sign := 1
		if m[1] == "-" {
			sign = -1
		}
		hours, _ := strconv.Atoi(m[2])
		minutes, _ := strconv.Atoi(m[3])
		return time.FixedZone(s, sign*(hours*3600+minutes*60)), nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", s, err)
	}
	return loc, nil
}

func convertTime(arg string) (reflect.Value, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, arg); err == nil {
			return reflect.ValueOf(t), nil
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, arg); err == nil {
			return reflect.ValueOf(t), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, arg); err == nil {
		return reflect.ValueOf(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot parse %q as time.Time", arg)
}
