package macro

import (
	"fmt"
	"strings"
)

// registerShellMacros adds the shell-format macro family to the registry.
func registerShellMacros(r *Registry) {
	r.Register(Macro{
		Name:   "package_install",
		Format: FormatShell,
		Params: []ParamSpec{
			{Name: "pkg_manager", Required: true, Enum: []string{"dnf", "apt_get"}, Usage: "package manager family"},
			{Name: "package", Required: true, Usage: "package name to install"},
		},
		Fn: packageInstall,
	})
	r.Register(Macro{
		Name:   "audit_syscall_rule",
		Format: FormatShell,
		Params: []ParamSpec{
			{Name: "tool", Required: true, Enum: []string{"augenrules", "auditctl"}, Usage: "audit rule loading tool"},
			{Name: "arch", Usage: "architecture filter, e.g. b64"},
			{Name: "other_filters", Usage: "additional -F filters"},
			{Name: "auid_filters", Usage: "auid -F filters"},
			{Name: "syscalls", Required: true, Usage: "syscall name or whitespace-separated names"},
			{Name: "syscall_groupings", Usage: "syscalls that may share one rule line"},
			{Name: "key", Required: true, Usage: "audit key"},
		},
		Fn: auditSyscallRule,
	})
	r.Register(Macro{
		Name:   "audit_watch_rule",
		Format: FormatShell,
		Params: []ParamSpec{
			{Name: "tool", Required: true, Enum: []string{"augenrules", "auditctl"}, Usage: "audit rule loading tool"},
			{Name: "path", Required: true, Usage: "watched file path"},
			{Name: "required_access_bits", Required: true, Usage: "permission bits, e.g. wa"},
			{Name: "key", Required: true, Usage: "audit key"},
			{Name: "style", Required: true, Enum: []string{"legacy", "modern"}, Usage: "watch rule syntax"},
			{Name: "arch", Usage: "architecture filter, required for modern style"},
			{Name: "filter_type", Usage: "rule list filter, required for modern style"},
		},
		Fn: auditWatchRule,
	})
	r.Register(Macro{
		Name:   "service_parameter_set",
		Format: FormatShell,
		Params: []ParamSpec{
			{Name: "service", Required: true, Enum: knownServiceNames(), Usage: "service owning the configuration"},
			{Name: "parameter", Required: true, Usage: "configuration parameter name"},
			{Name: "value", Required: true, Usage: "parameter value"},
			{Name: "config_is_distributed", Usage: "use a drop-in directory instead of the monolithic file"},
			{Name: "config_basename", Usage: "drop-in file basename, required when distributed"},
		},
		Fn: serviceParameterSetShell,
	})
	r.Register(Macro{
		Name:   "build_env_guard",
		Format: FormatShell,
		Fn:     buildEnvGuard,
	})
	r.Register(Macro{
		Name:   "container_env_guard",
		Format: FormatShell,
		Fn:     containerEnvGuard,
	})
}

// packageInstall emits an idempotent install-if-absent block for the
// selected package manager family.
func packageInstall(p Params) (string, error) {
	const name = "package_install"
	mgr, err := p.Enum(name, "pkg_manager", "dnf", "apt_get")
	if err != nil {
		return "", err
	}
	pkg, err := p.String(name, "package")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Ensure package %s is installed.\n", pkg)
	switch mgr {
	case "dnf":
		fmt.Fprintf(&b, "if ! rpm -q --quiet %s; then\n", shQuote(pkg))
		fmt.Fprintf(&b, "    dnf install -y %s\n", shQuote(pkg))
		b.WriteString("fi\n")
	case "apt_get":
		fmt.Fprintf(&b, "if ! dpkg-query --show --showformat='${db:Status-Status}\\n' %s 2>/dev/null | grep -q '^installed$'; then\n", shQuote(pkg))
		b.WriteString("    DEBIAN_FRONTEND=noninteractive apt-get install -y " + shQuote(pkg) + "\n")
		b.WriteString("fi\n")
	}
	return b.String(), nil
}

// buildEnvGuard emits a conditional that skips remediation while running
// inside an image build (kickstart/osbuild) context, where runtime-only
// fixes would be applied to the wrong root.
func buildEnvGuard(Params) (string, error) {
	return `# Skip remediation inside image-build environments.
if [ -e /.buildenv ] || grep -qs 'anaconda' /proc/cmdline; then
    echo "remediation skipped: image build environment detected" >&2
    exit 0
fi
`, nil
}

// containerEnvGuard emits a conditional that skips remediation inside
// containers, where host-level controls do not apply.
func containerEnvGuard(Params) (string, error) {
	return `# Skip remediation inside containers.
if [ -f /.dockerenv ] || [ -f /run/.containerenv ] || grep -qs 'container=' /proc/1/environ; then
    echo "remediation skipped: container environment detected" >&2
    exit 0
fi
`, nil
}
