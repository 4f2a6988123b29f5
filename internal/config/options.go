package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// .env keys understood by dutywatch.
const (
	KeyBroadcastChannel  = "ADMIN_CHANNEL_ID"
	KeyPrivateRecipient  = "WATCHDOG_DM_USER_ID"
	KeyToken             = "DISCORD_TOKEN"
	KeyPrivateInterval   = "DM_ALERT_INTERVAL"
	KeyBroadcastInterval = "ADMIN_ALERT_INTERVAL"
	KeyQuietStart        = "QUIET_HOURS_START"
	KeyQuietEnd          = "QUIET_HOURS_END"
	KeyWorkerFile        = "BOT_FILE"
)

// ErrInvalidValue marks a key whose value could not be parsed. The rest of
// the file is still applied.
var ErrInvalidValue = errors.New("invalid option value")

// Options are the operator settings read from the .env file.
type Options struct {
	BroadcastChannelID string
	PrivateRecipientID string
	Token              string
	PrivateInterval    time.Duration
	BroadcastInterval  time.Duration
	QuietStart         string
	QuietEnd           string
	WorkerFile         string
	// Vars holds every key in the file, upper-cased, for the worker environment.
	Vars map[string]string
}

// DefaultOptions mirrors the values used when the .env file is absent.
func DefaultOptions() Options {
	return Options{
		PrivateInterval:   300 * time.Second,
		BroadcastInterval: 600 * time.Second,
		QuietStart:        "00:00",
		QuietEnd:          "06:00",
		Vars:              map[string]string{},
	}
}

// LoadOptions reads a .env file through viper. A missing file yields the
// defaults together with an error wrapping fs.ErrNotExist so callers can warn
// and continue. Unparsable values keep their defaults and are reported as
// errors wrapping ErrInvalidValue next to the otherwise complete options.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if _, err := os.Stat(path); err != nil {
		return opts, fmt.Errorf("read options %s: %w", path, err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return opts, fmt.Errorf("read options %s: %w", path, err)
	}

	for _, k := range v.AllKeys() {
		opts.Vars[strings.ToUpper(k)] = v.GetString(k)
	}
	get := func(key string) string { return strings.TrimSpace(opts.Vars[key]) }

	opts.BroadcastChannelID = get(KeyBroadcastChannel)
	opts.PrivateRecipientID = get(KeyPrivateRecipient)
	opts.Token = get(KeyToken)
	opts.WorkerFile = get(KeyWorkerFile)
	if s := get(KeyQuietStart); s != "" {
		opts.QuietStart = s
	}
	if s := get(KeyQuietEnd); s != "" {
		opts.QuietEnd = s
	}

	var errs []error
	if d, err := seconds(get(KeyPrivateInterval)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyPrivateInterval, err))
	} else if d > 0 {
		opts.PrivateInterval = d
	}
	if d, err := seconds(get(KeyBroadcastInterval)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyBroadcastInterval, err))
	} else if d > 0 {
		opts.BroadcastInterval = d
	}
	return opts, errors.Join(errs...)
}

// IsMissing reports whether err came from an absent options file.
func IsMissing(err error) bool { return errors.Is(err, fs.ErrNotExist) }

// IsPartial reports whether err only concerns individual values, so the
// options returned with it are usable.
func IsPartial(err error) bool {
	if err == nil || IsMissing(err) {
		return false
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			if !errors.Is(e, ErrInvalidValue) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, ErrInvalidValue)
}

func seconds(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: seconds %q", ErrInvalidValue, s)
	}
	return time.Duration(n) * time.Second, nil
}

// Redacted returns a printable summary without the token.
func (o Options) Redacted() string {
	return fmt.Sprintf("broadcast=%s private=%s quiet=%s-%s worker=%s token_set=%t",
		o.BroadcastChannelID, o.PrivateRecipientID, o.QuietStart, o.QuietEnd,
		filepath.Base(o.WorkerFile), o.Token != "")
}
