package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompareVersionCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"older", []string{"compare-version", "1.0~rc1", "1.0"}, "1.0~rc1 < 1.0"},
		{"equal", []string{"compare-version", "1.0-1", "1.0-1"}, "1.0-1 == 1.0-1"},
		{"newer", []string{"compare-version", "1.10", "1.9"}, "1.10 > 1.9"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			rootCmd.SetOut(buf)
			rootCmd.SetErr(buf)
			rootCmd.SetArgs(tc.args)

			if err := rootCmd.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !strings.Contains(buf.String(), tc.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tc.want)
			}
		})
	}
}

func TestSetBooleansCommand_MalformedSetting(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"set-booleans", "not-a-pair"})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "name=value") {
		t.Errorf("Execute() error = %v, want malformed-setting error", err)
	}
}
