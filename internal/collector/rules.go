package collector

import "strings"

// Class is the outcome of classifying one log line.
type Class int

const (
	Neutral Class = iota
	Ignored
	Warning
	Critical
)

func (c Class) String() string {
	switch c {
	case Ignored:
		return "ignored"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "neutral"
	}
}

// Rules is the keyword classification table. Matching is case-insensitive.
// Ignore rules win over critical and warning keywords.
type Rules struct {
	CriticalKeys   []string `mapstructure:"critical_keys"`
	WarningKeys    []string `mapstructure:"warning_keys"`
	IgnoreKeys     []string `mapstructure:"ignore_keys"`
	IgnorePrefixes []string `mapstructure:"ignore_prefixes"` // matched against the message after the timestamp
}

func DefaultRules() Rules {
	return Rules{
		CriticalKeys: []string{"exception", "traceback", "fatal", "critical"},
		WarningKeys:  []string{"error", "warning", "rate limited"},
		IgnoreKeys:   []string{"env_update", "file_update", "manual", "restart initial"},
		IgnorePrefixes: []string{
			"[info", "[debug", "[notice", "[startup", "[ok]",
			"gateway:", "connected to gateway", "session id",
			"login using static token", "ready", "shard id",
		},
	}
}

// Merge returns r with every empty list replaced by the default one.
func (r Rules) Merge(def Rules) Rules {
	if len(r.CriticalKeys) == 0 {
		r.CriticalKeys = def.CriticalKeys
	}
	if len(r.WarningKeys) == 0 {
		r.WarningKeys = def.WarningKeys
	}
	if len(r.IgnoreKeys) == 0 {
		r.IgnoreKeys = def.IgnoreKeys
	}
	if len(r.IgnorePrefixes) == 0 {
		r.IgnorePrefixes = def.IgnorePrefixes
	}
	return r
}

// Classify assigns a class to a line given its full text and its message
// body (the text after the timestamp).
func (r Rules) Classify(line, body string) Class {
	l := strings.ToLower(line)
	b := strings.ToLower(body)
	if containsAny(l, r.IgnoreKeys) || hasAnyPrefix(b, r.IgnorePrefixes) {
		return Ignored
	}
	if containsAny(l, r.CriticalKeys) {
		return Critical
	}
	if containsAny(l, r.WarningKeys) {
		return Warning
	}
	return Neutral
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if k != "" && strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
