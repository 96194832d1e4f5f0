package backends

import (
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Options parsed from a backend configuration string, see ParseOptions.
type Options map[string]string

// ParseOptions parses the backend specific part of a configuration string: a comma-separated list of
// "key=value" or "key" (a boolean set to true) entries. Empty entries are ignored.
//
// E.g.: "limit=64MiB,nopool".
func ParseOptions(config string) (Options, error) {
	opts := make(Options)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errors.Errorf("invalid backend option %q in configuration %q: empty key", part, config)
		}
		if !found {
			value = "true"
		}
		if _, dup := opts[key]; dup {
			return nil, errors.Errorf("backend option %q given more than once in configuration %q", key, config)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

// Bytes returns the option as a number of bytes, accepting humanized values like "64MiB" or "1GB".
// It returns defaultValue if the option is not set.
func (opts Options) Bytes(key string, defaultValue int64) (int64, error) {
	value, found := opts[key]
	if !found {
		return defaultValue, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q for backend option %q", value, key)
	}
	return int64(n), nil
}

// Bool returns the option as a boolean, or defaultValue if the option is not set.
func (opts Options) Bool(key string, defaultValue bool) (bool, error) {
	value, found := opts[key]
	if !found {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrapf(err, "invalid boolean %q for backend option %q", value, key)
	}
	return b, nil
}

// CheckKnown returns an error if any of the options is not in the known list.
func (opts Options) CheckKnown(backendName string, known ...string) error {
	for key := range opts {
		if !slices.Contains(known, key) {
			return errors.Errorf("unknown option %q for backend %q, valid options are %q", key, backendName, known)
		}
	}
	return nil
}
