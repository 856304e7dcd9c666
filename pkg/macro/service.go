package macro

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/opencomply/remedygen/pkg/errors"
)

// serviceConfig describes where a service keeps its configuration and how
// its own tooling re-validates it after an edit.
type serviceConfig struct {
	// ConfigPath is the monolithic configuration file.
	ConfigPath string
	// DropinDir is the override directory, empty when the service does
	// not support distributed configuration.
	DropinDir string
	// Separator sits between parameter and value on a config line.
	Separator string
	// CheckCmd is the service's syntax-check command.
	CheckCmd string
	// FileCheckCmd is the check command form taking the edited file as
	// %s, used as the validate: argument of automation edit tasks. Empty
	// when the service can only validate its live configuration.
	FileCheckCmd string
}

// knownServices maps service names accepted by the service parameter
// setter macros to their configuration layout.
var knownServices = map[string]serviceConfig{
	"sshd": {
		ConfigPath:   "/etc/ssh/sshd_config",
		DropinDir:    "/etc/ssh/sshd_config.d",
		Separator:    " ",
		CheckCmd:     "sshd -t",
		FileCheckCmd: "sshd -t -f %s",
	},
	"chronyd": {
		ConfigPath:   "/etc/chrony.conf",
		DropinDir:    "/etc/chrony.d",
		Separator:    " ",
		CheckCmd:     "chronyd -p",
		FileCheckCmd: "chronyd -p -f %s",
	},
	"auditd": {
		ConfigPath: "/etc/audit/auditd.conf",
		Separator:  " = ",
		CheckCmd:   "auditctl -s > /dev/null",
	},
}

func knownServiceNames() []string {
	names := make([]string, 0, len(knownServices))
	for n := range knownServices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolveServiceTarget validates the service/distribution parameters and
// returns the service layout plus the file the macro must edit.
func resolveServiceTarget(macroName string, p Params) (svc serviceConfig, target string, distributed bool, err error) {
	svcName, err := p.Enum(macroName, "service", knownServiceNames()...)
	if err != nil {
		return serviceConfig{}, "", false, err
	}
	svc = knownServices[svcName]

	distributed, err = p.Bool(macroName, "config_is_distributed", false)
	if err != nil {
		return serviceConfig{}, "", false, err
	}
	if !distributed {
		return svc, svc.ConfigPath, false, nil
	}

	if svc.DropinDir == "" {
		return serviceConfig{}, "", false, errors.Newf(errors.ErrCodeInvalidRequest,
			"macro %q: parameter \"config_is_distributed\" is not supported for service %q (no drop-in directory)",
			macroName, svcName)
	}
	basename, err := p.String(macroName, "config_basename")
	if err != nil {
		return serviceConfig{}, "", false, err
	}
	if basename == "" || strings.Contains(basename, "/") {
		return serviceConfig{}, "", false, errors.Newf(errors.ErrCodeInvalidRequest,
			"macro %q: parameter \"config_basename\" must be a bare filename, got %q", macroName, basename)
	}
	return svc, path.Join(svc.DropinDir, basename), true, nil
}

// serviceParameterSetShell emits an idempotent shell block that sets a
// configuration parameter either in the service's monolithic config file
// or in a drop-in file, then re-validates the configuration with the
// service's own syntax-check command.
func serviceParameterSetShell(p Params) (string, error) {
	const name = "service_parameter_set"
	svc, target, distributed, err := resolveServiceTarget(name, p)
	if err != nil {
		return "", err
	}
	param, err := p.String(name, "parameter")
	if err != nil {
		return "", err
	}
	value, err := p.String(name, "value")
	if err != nil {
		return "", err
	}

	sep := svc.Separator
	line := param + sep + value
	paramPattern := "^[[:space:]]*" + sedLiteral(param) + `\b`
	linePattern := "^[[:space:]]*" + sedLiteral(param) +
		strings.ReplaceAll(sedLiteral(sep), " ", "[[:space:]]*") + sedLiteral(value) + "[[:space:]]*$"

	var b strings.Builder
	fmt.Fprintf(&b, "# Set %s to %s in %s.\n", param, value, target)
	if distributed {
		fmt.Fprintf(&b, "mkdir -p -m 0755 \"%s\"\n", svc.DropinDir)
		fmt.Fprintf(&b, "touch \"%s\"\n", target)
	}
	fmt.Fprintf(&b, "if grep -q -- \"%s\" \"%s\"; then\n", paramPattern, target)
	fmt.Fprintf(&b, "    if ! grep -q -- \"%s\" \"%s\"; then\n", linePattern, target)
	fmt.Fprintf(&b, "        sed -i \"s#%s.*#%s#\" \"%s\"\n", paramPattern, sedReplacement(line), target)
	b.WriteString("    fi\nelse\n")
	fmt.Fprintf(&b, "    printf '%%s\\n' %s >> \"%s\"\nfi\n", shQuote(line), target)
	b.WriteString("# The service must accept the resulting configuration.\n")
	fmt.Fprintf(&b, "%s\n", svc.CheckCmd)
	return b.String(), nil
}

// sedReplacement escapes s for the replacement side of a sed s### command.
func sedReplacement(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `#`, `\#`)
	s = strings.ReplaceAll(s, `&`, `\&`)
	return s
}
