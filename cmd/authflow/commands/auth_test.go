package commands

import (
	"testing"
)

func TestAuthCommandWiring(t *testing.T) {
	cmd := authCommand()
	if cmd.Name != "auth" {
		t.Errorf("Name = %q, want %q", cmd.Name, "auth")
	}

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands {
		subcommands[sub.Name] = true
	}
	for _, name := range []string{"login", "logout", "status"} {
		if !subcommands[name] {
			t.Errorf("missing %q subcommand", name)
		}
	}
}

func TestAuthLoginFlags(t *testing.T) {
	login := authLoginCommand()

	names := make(map[string]bool)
	for _, flag := range login.Flags {
		for _, n := range flag.Names() {
			names[n] = true
		}
	}
	for _, want := range []string{"no-browser", "timeout"} {
		if !names[want] {
			t.Errorf("login is missing the --%s flag", want)
		}
	}
}

func TestAuthStatusFlags(t *testing.T) {
	status := authStatusCommand()

	names := make(map[string]bool)
	for _, flag := range status.Flags {
		for _, n := range flag.Names() {
			names[n] = true
		}
	}
	if !names["refresh"] {
		t.Error("status is missing the --refresh flag")
	}
}
