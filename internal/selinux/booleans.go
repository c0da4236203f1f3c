package selinux

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SetBooleansError reports the boolean settings that could not be applied.
// The batch keeps going past individual failures so as many settings as
// possible converge; the failures are aggregated here afterwards.
type SetBooleansError struct {
	// Failed maps each setting name to the value it should have been set to.
	Failed map[string]string

	// Command is the setsebool command line that would apply the failed
	// settings, for the operator to run by hand.
	Command string
}

func (e *SetBooleansError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name, value := range e.Failed {
		names = append(names, name+"="+value)
	}
	sort.Strings(names)
	return fmt.Sprintf("selinux: cannot set booleans %s (run: %s)",
		strings.Join(names, ", "), e.Command)
}

// BackupFunc records the pre-change value of a boolean setting so it can be
// restored on uninstall.
type BackupFunc func(setting, value string)

// SetBooleans applies the required boolean settings persistently. Settings
// whose current value already matches are left alone. Settings with an
// empty required value are skipped. When SELinux is disabled the call is a
// no-op reporting (false, nil).
//
// Each setting is queried individually; query failures do not abort the
// batch. All differing settings are applied with a single setsebool -P
// invocation. Failures are collected and returned as one *SetBooleansError
// after the batch completes. The returned bool reports whether any setting
// was actually changed.
func (s *SELinux) SetBooleans(ctx context.Context, required map[string]string, backup BackupFunc) (bool, error) {
	if !s.Enabled(ctx) {
		return false, nil
	}

	// Sorted iteration keeps the applied command line and the error
	// message deterministic.
	names := make([]string, 0, len(required))
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)

	updated := map[string]string{}
	failed := map[string]string{}
	for _, name := range names {
		want := required[name]
		if want == "" {
			continue
		}

		res, err := s.runner.Run(ctx, s.cfg.GetseboolPath, name)
		if err != nil {
			s.logger.Error("cannot get SELinux boolean", "setting", name, "error", err)
			failed[name] = want
			continue
		}

		// getsebool output: "<name> --> <on|off>"
		fields := strings.Fields(res.Output)
		if len(fields) < 3 {
			s.logger.Error("unexpected getsebool output", "setting", name, "output", res.Output)
			failed[name] = want
			continue
		}
		current := fields[2]

		if backup != nil {
			backup(name, current)
		}
		if current != want {
			updated[name] = want
		}
	}

	if len(updated) > 0 {
		if _, err := s.runner.Run(ctx, s.cfg.SetseboolPath, setseboolArgs(updated)...); err != nil {
			s.logger.Error("cannot apply SELinux booleans", "error", err)
			for name, value := range updated {
				failed[name] = value
			}
			updated = nil
		}
	}

	if len(failed) > 0 {
		return len(updated) > 0, &SetBooleansError{
			Failed:  failed,
			Command: s.cfg.SetseboolPath + " " + strings.Join(setseboolArgs(failed), " "),
		}
	}
	return len(updated) > 0, nil
}

func setseboolArgs(settings map[string]string) []string {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	args := []string{"-P"}
	for _, name := range names {
		args = append(args, name+"="+settings[name])
	}
	return args
}
