package macro

import (
	"fmt"
	"strings"
)

// registerAutomationMacros adds the automation-format macro family. Each
// macro mirrors the semantics of its shell counterpart but emits a
// top-level YAML sequence of declarative tasks.
func registerAutomationMacros(r *Registry) {
	r.Register(Macro{
		Name:   "automation_package_install",
		Format: FormatAutomation,
		Params: []ParamSpec{
			{Name: "package", Required: true, Usage: "package name to install"},
		},
		Fn: automationPackageInstall,
	})
	r.Register(Macro{
		Name:   "automation_audit_syscall_rule",
		Format: FormatAutomation,
		Params: []ParamSpec{
			{Name: "tool", Required: true, Enum: []string{"augenrules", "auditctl"}, Usage: "audit rule loading tool"},
			{Name: "arch", Usage: "architecture filter, e.g. b64"},
			{Name: "other_filters", Usage: "additional -F filters"},
			{Name: "auid_filters", Usage: "auid -F filters"},
			{Name: "syscalls", Required: true, Usage: "syscall name or whitespace-separated names"},
			{Name: "syscall_groupings", Usage: "syscalls that may share one rule line"},
			{Name: "key", Required: true, Usage: "audit key"},
		},
		Fn: automationAuditSyscallRule,
	})
	r.Register(Macro{
		Name:   "automation_audit_watch_rule",
		Format: FormatAutomation,
		Params: []ParamSpec{
			{Name: "tool", Required: true, Enum: []string{"augenrules", "auditctl"}, Usage: "audit rule loading tool"},
			{Name: "path", Required: true, Usage: "watched file path"},
			{Name: "required_access_bits", Required: true, Usage: "permission bits, e.g. wa"},
			{Name: "key", Required: true, Usage: "audit key"},
			{Name: "style", Required: true, Enum: []string{"legacy", "modern"}, Usage: "watch rule syntax"},
			{Name: "arch", Usage: "architecture filter, required for modern style"},
			{Name: "filter_type", Usage: "rule list filter, required for modern style"},
		},
		Fn: automationAuditWatchRule,
	})
	r.Register(Macro{
		Name:   "automation_service_parameter_set",
		Format: FormatAutomation,
		Params: []ParamSpec{
			{Name: "service", Required: true, Enum: knownServiceNames(), Usage: "service owning the configuration"},
			{Name: "parameter", Required: true, Usage: "configuration parameter name"},
			{Name: "value", Required: true, Usage: "parameter value"},
			{Name: "config_is_distributed", Usage: "use a drop-in directory instead of the monolithic file"},
			{Name: "config_basename", Usage: "drop-in file basename, required when distributed"},
		},
		Fn: automationServiceParameterSet,
	})
}

func automationPackageInstall(p Params) (string, error) {
	const name = "automation_package_install"
	pkg, err := p.String(name, "package")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Ensure package "+pkg+" is installed"))
	b.WriteString("  package:\n")
	fmt.Fprintf(&b, "    name: %s\n", yamlQuote(pkg))
	b.WriteString("    state: present\n")
	return b.String(), nil
}

func automationAuditSyscallRule(p Params) (string, error) {
	const name = "automation_audit_syscall_rule"
	tool, err := p.Enum(name, "tool", "augenrules", "auditctl")
	if err != nil {
		return "", err
	}
	syscalls, err := p.StringList(name, "syscalls")
	if err != nil {
		return "", err
	}
	key, err := p.String(name, "key")
	if err != nil {
		return "", err
	}
	arch := p.StringDefault("arch", "")
	otherFilters := p.StringDefault("other_filters", "")
	auidFilters := p.StringDefault("auid_filters", "")

	actionArch := "-a always,exit"
	if arch != "" {
		actionArch += " -F arch=" + arch
	}
	var syscallFlags strings.Builder
	for _, s := range syscalls {
		syscallFlags.WriteString(" -S " + s)
	}
	ruleParts := []string{actionArch + syscallFlags.String()}
	if otherFilters != "" {
		ruleParts = append(ruleParts, otherFilters)
	}
	if auidFilters != "" {
		ruleParts = append(ruleParts, auidFilters)
	}
	ruleParts = append(ruleParts, "-F key="+key)
	fullRule := strings.Join(ruleParts, " ")

	var b strings.Builder
	fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Declare audit syscalls for key "+key))
	b.WriteString("  set_fact:\n    audit_syscalls:\n")
	for _, s := range syscalls {
		fmt.Fprintf(&b, "      - %s\n", yamlQuote(s))
	}
	if tool == "augenrules" {
		contains := "^" + regexEscapeYAML(actionArch) + `(( -S |,)\w+)+.*`
		fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Find rule files with an existing rule for the syscalls"))
		b.WriteString("  find:\n")
		b.WriteString("    paths: \"/etc/audit/rules.d\"\n")
		b.WriteString("    patterns: \"*.rules\"\n")
		fmt.Fprintf(&b, "    contains: %s\n", yamlQuote(contains))
		b.WriteString("  register: find_existing_rule\n")
		fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Ensure audit rule for "+key+" is present"))
		b.WriteString("  lineinfile:\n")
		fmt.Fprintf(&b, "    path: %s\n", yamlQuote("/etc/audit/rules.d/"+key+".rules"))
		fmt.Fprintf(&b, "    line: %s\n", yamlQuote(fullRule))
		b.WriteString("    create: true\n    mode: \"0600\"\n")
		b.WriteString("  when: find_existing_rule.matched is not defined or find_existing_rule.matched == 0\n")
	} else {
		fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Ensure audit rule for "+key+" is present"))
		b.WriteString("  lineinfile:\n")
		b.WriteString("    path: \"/etc/audit/audit.rules\"\n")
		fmt.Fprintf(&b, "    line: %s\n", yamlQuote(fullRule))
		b.WriteString("    create: true\n    mode: \"0600\"\n")
	}
	return b.String(), nil
}

func automationAuditWatchRule(p Params) (string, error) {
	const name = "automation_audit_watch_rule"
	tool, err := p.Enum(name, "tool", "augenrules", "auditctl")
	if err != nil {
		return "", err
	}
	path, err := p.String(name, "path")
	if err != nil {
		return "", err
	}
	bits, err := p.String(name, "required_access_bits")
	if err != nil {
		return "", err
	}
	key, err := p.String(name, "key")
	if err != nil {
		return "", err
	}
	style, err := p.Enum(name, "style", "legacy", "modern")
	if err != nil {
		return "", err
	}

	var fullRule, match string
	switch style {
	case "legacy":
		fullRule = fmt.Sprintf("-w %s -p %s -k %s", path, bits, key)
		match = `^\s*-w\s+` + regexEscapeYAML(path) + `\s`
	case "modern":
		arch, archErr := p.String(name, "arch")
		if archErr != nil {
			return "", archErr
		}
		filterType, ftErr := p.String(name, "filter_type")
		if ftErr != nil {
			return "", ftErr
		}
		fullRule = fmt.Sprintf("-a always,%s -F arch=%s -F path=%s -F perm=%s -F key=%s",
			filterType, arch, path, bits, key)
		match = `^\s*-a\s+always,` + filterType + `\s.*-F\s+path=` + regexEscapeYAML(path) + `\s`
	}

	target := "/etc/audit/audit.rules"
	if tool == "augenrules" {
		target = "/etc/audit/rules.d/" + key + ".rules"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Ensure audit watch for "+path+" under key "+key))
	b.WriteString("  lineinfile:\n")
	fmt.Fprintf(&b, "    path: %s\n", yamlQuote(target))
	fmt.Fprintf(&b, "    regexp: %s\n", yamlQuote(match))
	fmt.Fprintf(&b, "    line: %s\n", yamlQuote(fullRule))
	b.WriteString("    create: true\n    mode: \"0600\"\n")
	return b.String(), nil
}

func automationServiceParameterSet(p Params) (string, error) {
	const name = "automation_service_parameter_set"
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

	line := param + svc.Separator + value
	match := `^\s*` + regexEscapeYAML(param) + `\b`

	var b strings.Builder
	if distributed {
		fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Ensure drop-in directory "+svc.DropinDir+" exists"))
		b.WriteString("  file:\n")
		fmt.Fprintf(&b, "    path: %s\n", yamlQuote(svc.DropinDir))
		b.WriteString("    state: directory\n    mode: \"0755\"\n")
	}
	fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Set "+param+" in "+pathBase(target)))
	b.WriteString("  lineinfile:\n")
	fmt.Fprintf(&b, "    path: %s\n", yamlQuote(target))
	fmt.Fprintf(&b, "    regexp: %s\n", yamlQuote(match))
	fmt.Fprintf(&b, "    line: %s\n", yamlQuote(line))
	b.WriteString("    create: true\n")
	if svc.FileCheckCmd != "" {
		fmt.Fprintf(&b, "    validate: %s\n", yamlQuote(svc.FileCheckCmd))
	}
	if svc.FileCheckCmd == "" {
		// No file-scoped validator exists; verify the live configuration
		// as a separate read-only task.
		fmt.Fprintf(&b, "- name: %s\n", yamlQuote("Verify "+pathBase(target)+" is accepted"))
		fmt.Fprintf(&b, "  command: %s\n", yamlQuote(strings.SplitN(svc.CheckCmd, " >", 2)[0]))
		b.WriteString("  changed_when: false\n")
	}
	return b.String(), nil
}

// regexEscapeYAML escapes regex metacharacters for patterns embedded in
// generated task fields.
func regexEscapeYAML(s string) string {
	replacer := strings.NewReplacer(
		`.`, `\.`, `[`, `\[`, `]`, `\]`, `*`, `\*`, `+`, `\+`, `?`, `\?`,
		`(`, `\(`, `)`, `\)`, `{`, `\{`, `}`, `\}`, `^`, `\^`, `$`, `\$`, `|`, `\|`,
	)
	return replacer.Replace(s)
}

func pathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
