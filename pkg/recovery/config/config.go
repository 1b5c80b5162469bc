package config

import (
	"strconv"
	"strings"
	"time"
)

// Config is a decoded settings tree. Every accessor takes a key that may be
// a dotted path into nested sections ("store.redis.url") and returns the
// caller's default when the path is missing or holds the wrong type.
type Config struct {
	root map[string]any
}

// New wraps data. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}
	return Config{root: data}
}

func (c Config) lookup(path string) (any, bool) {
	node := any(c.root)
	for part := range strings.SplitSeq(path, ".") {
		section, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = section[part]; !ok {
			return nil, false
		}
	}
	return node, true
}

// Sub returns the section at path; anything else yields an empty Config.
func (c Config) Sub(path string) Config {
	section, _ := c.value(path).(map[string]any)
	return New(section)
}

func (c Config) value(path string) any {
	v, _ := c.lookup(path)
	return v
}

// String returns the string at path.
func (c Config) String(path, def string) string {
	if s, ok := c.value(path).(string); ok {
		return s
	}
	return def
}

// Duration returns the duration at path. Strings go through
// time.ParseDuration; bare numbers count seconds.
func (c Config) Duration(path string, def time.Duration) time.Duration {
	switch v := c.value(path).(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case time.Duration:
		return v
	}
	return def
}

// Bool returns the boolean at path. The strings accepted by
// strconv.ParseBool also count, so env-expanded values work.
func (c Config) Bool(path string, def bool) bool {
	switch v := c.value(path).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns the integer at path. Floats qualify only when whole.
func (c Config) Int(path string, def int) int {
	switch v := c.value(path).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// StringSlice returns the list at path. A scalar string is split on
// commas. A list with a non-string element yields def.
func (c Config) StringSlice(path string, def []string) []string {
	switch v := c.value(path).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	case string:
		var out []string
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return def
}

// Has reports whether path is set.
func (c Config) Has(path string) bool {
	_, ok := c.lookup(path)
	return ok
}

// Raw returns the underlying tree; treat it as read-only.
func (c Config) Raw() map[string]any {
	return c.root
}
