package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env reads typed settings from the process environment. A variable that is
// set but cannot be parsed keeps the default and is reported by err.
type env struct {
	errs []error
}

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) invalid(key, raw, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", key, raw, kind))
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "integer")
		return def
	}
	return n
}

func (e *env) flag(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid(key, v, "boolean")
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(key, v, "duration")
		return def
	}
	return d
}

// list splits a comma separated value, dropping blanks. An all-blank value
// falls back to def.
func (e *env) list(key string, def []string) []string {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// lower reads a lower-cased keyword, using def when unset or blank.
func (e *env) lower(key, def string) string {
	if v := strings.ToLower(e.str(key, "")); v != "" {
		return v
	}
	return def
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}
