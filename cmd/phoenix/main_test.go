package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "migrate", "recover"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "phoenix.yaml"},
		{"/etc/phoenix/production.yaml", "/etc/phoenix/production.yaml"},
	}
	for _, tc := range cases {
		if got := resolveConfigPath(tc.in); got != tc.want {
			t.Errorf("resolveConfigPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
