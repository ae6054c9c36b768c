package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with field",
			err:  &ConfigError{Field: "queue.max_batch_size", Message: "must be positive"},
			want: "config error in queue.max_batch_size: must be positive",
		},
		{
			name: "without field",
			err:  &ConfigError{Message: "file not found"},
			want: "config error: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewConfigError(t *testing.T) {
	cause := errors.New("bad yaml")
	err := NewConfigError("", cause)
	if err.Message != "bad yaml" {
		t.Errorf("Message = %q, want %q", err.Message, "bad yaml")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	if got := NewConfigError("server", nil).Message; got != "invalid configuration" {
		t.Errorf("Message = %q, want %q", got, "invalid configuration")
	}
}

func TestCommandError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewCommandError("run", underlying)

	if got, want := err.Error(), "command run failed: underlying error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is(err, underlying) = false, want true")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain error", err: errors.New("boom"), want: ExitError},
		{name: "command error", err: NewCommandError("run", errors.New("boom")), want: ExitError},
		{name: "config error", err: NewConfigError("", errors.New("bad")), want: ExitConfig},
		{name: "wrapped config error", err: fmt.Errorf("startup: %w", NewConfigError("", nil)), want: ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
