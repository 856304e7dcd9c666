package macro

import (
	"strings"
	"testing"

	"mvdan.cc/sh/v3/syntax"
)

// parseShell fails the test if src is not valid shell.
func parseShell(t *testing.T, src string) {
	t.Helper()
	if _, err := syntax.NewParser().Parse(strings.NewReader(src), "fragment"); err != nil {
		t.Fatalf("generated shell does not parse: %v\n%s", err, src)
	}
}

func TestPackageInstall(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		want     []string
		wantErr  bool
		errNames string
	}{
		{
			name:   "dnf install guard",
			params: Params{"pkg_manager": "dnf", "package": "audit"},
			want:   []string{"rpm -q --quiet 'audit'", "dnf install -y 'audit'"},
		},
		{
			name:   "apt install guard",
			params: Params{"pkg_manager": "apt_get", "package": "auditd"},
			want:   []string{"dpkg-query", "apt-get install -y 'auditd'"},
		},
		{
			name:     "unknown pkg_manager",
			params:   Params{"pkg_manager": "pacman", "package": "audit"},
			wantErr:  true,
			errNames: "pkg_manager",
		},
		{
			name:     "missing package",
			params:   Params{"pkg_manager": "dnf"},
			wantErr:  true,
			errNames: "package",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := packageInstall(tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errNames) {
					t.Errorf("error %q does not name parameter %q", err, tt.errNames)
				}
				return
			}
			if err != nil {
				t.Fatalf("packageInstall() error = %v", err)
			}
			parseShell(t, out)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			if strings.Contains(out, "{{{") {
				t.Error("output contains unexpanded placeholder marker")
			}
		})
	}
}

func TestPackageInstall_Deterministic(t *testing.T) {
	p := Params{"pkg_manager": "dnf", "package": "aide"}
	a, err := packageInstall(p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := packageInstall(p)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("macro output is not deterministic")
	}
}

func TestAuditSyscallRule_Augenrules(t *testing.T) {
	out, err := auditSyscallRule(Params{
		"tool":     "augenrules",
		"arch":     "b64",
		"syscalls": "openat open",
		"key":      "access_control",
	})
	if err != nil {
		t.Fatalf("auditSyscallRule() error = %v", err)
	}
	parseShell(t, out)

	for _, want := range []string{
		"/etc/audit/rules.d/access_control.rules",
		"readarray -t files_to_inspect",
		"-S openat",
		"-S open",
		"-F key=access_control",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	// Idempotence: the generated script must carry the already-present
	// guard that prevents duplicate rule lines on repeated runs.
	if !strings.Contains(out, `skip=0`) || !strings.Contains(out, `if [ "$skip" -eq 1 ]; then`) {
		t.Error("output missing already-present guard")
	}
}

func TestAuditSyscallRule_Auditctl(t *testing.T) {
	out, err := auditSyscallRule(Params{
		"tool":     "auditctl",
		"syscalls": []string{"unlink", "unlinkat"},
		"key":      "delete",
	})
	if err != nil {
		t.Fatalf("auditSyscallRule() error = %v", err)
	}
	parseShell(t, out)
	if !strings.Contains(out, `default_file="/etc/audit/audit.rules"`) {
		t.Error("auditctl tool must target /etc/audit/audit.rules")
	}
	if strings.Contains(out, "/etc/audit/rules.d/") {
		t.Error("auditctl tool must not reference rules.d")
	}
}

func TestAuditSyscallRule_InvalidTool(t *testing.T) {
	_, err := auditSyscallRule(Params{"tool": "systemctl", "syscalls": "open", "key": "k"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "tool") || !strings.Contains(err.Error(), "systemctl") {
		t.Errorf("error must name the invalid parameter and value, got %q", err)
	}
}

func TestAuditWatchRule(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		want    []string
		wantErr string
	}{
		{
			name: "legacy style",
			params: Params{
				"tool": "augenrules", "path": "/var/log/lastlog",
				"required_access_bits": "wa", "key": "logins", "style": "legacy",
			},
			want: []string{
				"-w /var/log/lastlog -p wa -k logins",
				"/etc/audit/rules.d/logins.rules",
			},
		},
		{
			name: "modern style",
			params: Params{
				"tool": "auditctl", "path": "/etc/sudoers",
				"required_access_bits": "wa", "key": "actions", "style": "modern",
				"arch": "b64", "filter_type": "exit",
			},
			want: []string{
				"-a always,exit -F arch=b64 -F path=/etc/sudoers -F perm=wa -F key=actions",
			},
		},
		{
			name: "unknown style is an explicit error",
			params: Params{
				"tool": "augenrules", "path": "/etc/passwd",
				"required_access_bits": "wa", "key": "k", "style": "fancy",
			},
			wantErr: "style",
		},
		{
			name: "modern style requires arch",
			params: Params{
				"tool": "augenrules", "path": "/etc/passwd",
				"required_access_bits": "wa", "key": "k", "style": "modern",
			},
			wantErr: "arch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := auditWatchRule(tt.params)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not name %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("auditWatchRule() error = %v", err)
			}
			parseShell(t, out)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestServiceParameterSetShell(t *testing.T) {
	t.Run("monolithic edits main config and revalidates", func(t *testing.T) {
		out, err := serviceParameterSetShell(Params{
			"service": "sshd", "parameter": "Banner", "value": "/etc/issue",
		})
		if err != nil {
			t.Fatal(err)
		}
		parseShell(t, out)
		for _, want := range []string{"/etc/ssh/sshd_config", "Banner /etc/issue", "sshd -t"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q", want)
			}
		}
		if strings.Contains(out, "sshd_config.d") {
			t.Error("monolithic variant must not touch the drop-in directory")
		}
	})

	t.Run("distributed creates drop-in and revalidates", func(t *testing.T) {
		out, err := serviceParameterSetShell(Params{
			"service": "chronyd", "parameter": "maxpoll", "value": "10",
			"config_is_distributed": true, "config_basename": "02-hardening.conf",
		})
		if err != nil {
			t.Fatal(err)
		}
		parseShell(t, out)
		for _, want := range []string{
			"mkdir -p -m 0755 \"/etc/chrony.d\"",
			"/etc/chrony.d/02-hardening.conf",
			"chronyd -p",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, `"/etc/chrony.conf"`) {
			t.Error("distributed variant must not edit the monolithic config")
		}
	})

	t.Run("distributed unsupported for auditd", func(t *testing.T) {
		_, err := serviceParameterSetShell(Params{
			"service": "auditd", "parameter": "max_log_file", "value": "8",
			"config_is_distributed": true, "config_basename": "x.conf",
		})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "config_is_distributed") {
			t.Errorf("error must name the offending parameter, got %q", err)
		}
	})
}

func TestEnvGuards(t *testing.T) {
	for _, name := range []string{"build_env_guard", "container_env_guard"} {
		out, err := Default().Render(name, Params{})
		if err != nil {
			t.Fatalf("%s error = %v", name, err)
		}
		parseShell(t, out)
		if !strings.Contains(out, "exit 0") {
			t.Errorf("%s must gate remediation with an early exit", name)
		}
	}
}
