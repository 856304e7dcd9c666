package macro

import (
	"fmt"
	"strings"
)

// auditRulePaths returns the inspected-files setup and the default rule
// file for the given tool. augenrules loads every *.rules file under
// /etc/audit/rules.d, auditctl only reads the monolithic audit.rules.
func auditRulePaths(tool, key string) (setup, defaultFile string) {
	if tool == "augenrules" {
		setup = "files_to_inspect=()\n" +
			"readarray -t files_to_inspect < <(find /etc/audit/rules.d/ -maxdepth 1 -type f -name '*.rules' -print)\n"
		defaultFile = "/etc/audit/rules.d/" + key + ".rules"
		return setup, defaultFile
	}
	defaultFile = "/etc/audit/audit.rules"
	setup = "files_to_inspect=(\"" + defaultFile + "\")\n"
	return setup, defaultFile
}

// sedLiteral escapes s for use inside a /.../ sed address.
func sedLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `/`, `\/`)
	s = strings.ReplaceAll(s, `[`, `\[`)
	s = strings.ReplaceAll(s, `]`, `\]`)
	s = strings.ReplaceAll(s, `*`, `\*`)
	s = strings.ReplaceAll(s, `.`, `\.`)
	return s
}

// auditSyscallRule emits shell that inspects the existing audit rule files,
// merges the requested syscalls into an existing rule line sharing the same
// architecture/filter signature and syscall grouping, or appends a new rule
// line. Repeated runs never produce duplicate rule lines.
func auditSyscallRule(p Params) (string, error) {
	const name = "audit_syscall_rule"
	tool, err := p.Enum(name, "tool", "augenrules", "auditctl")
	if err != nil {
		return "", err
	}
	syscalls, err := p.StringList(name, "syscalls")
	if err != nil {
		return "", err
	}
	groupings, err := p.StringListDefault(name, "syscall_groupings")
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

	setup, defaultFile := auditRulePaths(tool, key)

	// sed program that selects candidate rule lines: same action/arch
	// signature, same auxiliary filters, and carrying a key field.
	sedExprs := []string{fmt.Sprintf("-e '/^%s/!d'", sedLiteral(actionArch))}
	if otherFilters != "" {
		sedExprs = append(sedExprs, fmt.Sprintf("-e '/%s/!d'", sedLiteral(otherFilters)))
	}
	if auidFilters != "" {
		sedExprs = append(sedExprs, fmt.Sprintf("-e '/%s/!d'", sedLiteral(auidFilters)))
	}
	sedExprs = append(sedExprs, `-e '/-k[[:space:]]\|-F key=/p'`)

	var b strings.Builder
	fmt.Fprintf(&b, "# Ensure audit rule for syscalls [%s] under key %q.\n", strings.Join(syscalls, " "), key)
	b.WriteString("unset syscall_string file_to_edit rule_to_edit rule_syscalls_to_edit\n")
	fmt.Fprintf(&b, "syscall_a=( %s )\n", strings.Join(syscalls, " "))
	if len(groupings) > 0 {
		fmt.Fprintf(&b, "syscall_grouping=( %s )\n", strings.Join(groupings, " "))
	} else {
		fmt.Fprintf(&b, "syscall_grouping=( %s )\n", strings.Join(syscalls, " "))
	}
	b.WriteString("\n# Collect the audit rule files to inspect for an existing rule.\n")
	b.WriteString(setup)
	fmt.Fprintf(&b, "default_file=\"%s\"\n", defaultFile)
	b.WriteString(`if [ "${#files_to_inspect[@]}" -eq 0 ]; then
    touch "$default_file"
    chmod 0600 "$default_file"
    files_to_inspect+=("$default_file")
fi
`)
	b.WriteString("\nskip=1\n")
	b.WriteString("for audit_file in \"${files_to_inspect[@]}\"; do\n")
	fmt.Fprintf(&b, "    readarray -t matching_rules < <(sed -s -n %s \"$audit_file\")\n", strings.Join(sedExprs, " "))
	b.WriteString(`    for rule in "${matching_rules[@]}"; do
        rule_syscalls=$(echo "$rule" | grep -o -P '(-S [\w,]+ )+' | xargs)
        all_present=1
        for syscall in "${syscall_a[@]}"; do
            grep -q -- "\b${syscall}\b" <<< "$rule_syscalls" || all_present=0
        done
        if [ "$all_present" -eq 1 ]; then
            # Rule already covers every requested syscall.
            skip=0
            break
        fi
        for syscall in "${syscall_grouping[@]}"; do
            if grep -q -- "\b${syscall}\b" <<< "$rule_syscalls"; then
                # Rule shares a grouping member: extend it instead of
                # appending a duplicate line.
                file_to_edit="$audit_file"
                rule_to_edit="$rule"
                rule_syscalls_to_edit="$rule_syscalls"
                break
            fi
        done
    done
    [ "$skip" -eq 0 ] && break
done

if [ "$skip" -eq 1 ]; then
    if [ -n "$rule_to_edit" ]; then
        new_syscalls="$rule_syscalls_to_edit"
        for syscall in "${syscall_a[@]}"; do
            grep -q -- "\b${syscall}\b" <<< "$new_syscalls" || new_syscalls="$new_syscalls -S $syscall"
        done
        updated_rule="${rule_to_edit/$rule_syscalls_to_edit/$new_syscalls}"
        sed -i "s#${rule_to_edit}#${updated_rule}#" "$file_to_edit"
    else
        syscall_string=""
        for syscall in "${syscall_a[@]}"; do
            syscall_string="$syscall_string -S $syscall"
        done
`)
	parts := []string{actionArch + "${syscall_string}"}
	if otherFilters != "" {
		parts = append(parts, otherFilters)
	}
	if auidFilters != "" {
		parts = append(parts, auidFilters)
	}
	parts = append(parts, "-F key="+key)
	fmt.Fprintf(&b, "        full_rule=\"%s\"\n", strings.Join(parts, " "))
	b.WriteString(`        echo "$full_rule" >> "$default_file"
    fi
fi
`)
	return b.String(), nil
}

// auditWatchRule emits shell that ensures a file-watch audit rule exists
// with at least the required access bits, either in the legacy -w syntax
// or the modern -a always,exit -F path= syntax.
func auditWatchRule(p Params) (string, error) {
	const name = "audit_watch_rule"
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

	setup, defaultFile := auditRulePaths(tool, key)

	var fullRule, matchPattern string
	switch style {
	case "legacy":
		fullRule = fmt.Sprintf("-w %s -p %s -k %s", path, bits, key)
		matchPattern = fmt.Sprintf(`^[[:space:]]*-w[[:space:]]+%s[[:space:]]`, sedLiteral(path))
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
		matchPattern = fmt.Sprintf(`^[[:space:]]*-a[[:space:]]+always,%s[[:space:]].*-F[[:space:]]+path=%s[[:space:]]`,
			sedLiteral(filterType), sedLiteral(path))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Ensure audit watch rule for %s (access: %s) under key %q.\n", path, bits, key)
	b.WriteString(setup)
	fmt.Fprintf(&b, "default_file=\"%s\"\n", defaultFile)
	b.WriteString(`if [ "${#files_to_inspect[@]}" -eq 0 ]; then
    touch "$default_file"
    chmod 0600 "$default_file"
    files_to_inspect+=("$default_file")
fi

found=0
for audit_file in "${files_to_inspect[@]}"; do
`)
	fmt.Fprintf(&b, "    if grep -q -- \"%s\" \"$audit_file\"; then\n", matchPattern)
	b.WriteString("        found=1\n")
	b.WriteString("        # Watch exists: make sure every required access bit is present.\n")
	if style == "legacy" {
		fmt.Fprintf(&b,
			"        current_bits=$(grep -- \"%s\" \"$audit_file\" | sed -n 's/.*-p[[:space:]]*\\([^[:space:]]*\\).*/\\1/p' | head -n1)\n",
			matchPattern)
	} else {
		fmt.Fprintf(&b,
			"        current_bits=$(grep -- \"%s\" \"$audit_file\" | sed -n 's/.*-F[[:space:]]*perm=\\([^[:space:]]*\\).*/\\1/p' | head -n1)\n",
			matchPattern)
	}
	fmt.Fprintf(&b, "        missing_bits=\"\"\n        for bit in %s; do\n", strings.Join(strings.Split(bits, ""), " "))
	b.WriteString(`            case "$current_bits" in
                *"$bit"*) ;;
                *) missing_bits="$missing_bits$bit" ;;
            esac
        done
        if [ -n "$missing_bits" ]; then
`)
	if style == "legacy" {
		fmt.Fprintf(&b, "            sed -i \"s#\\(%s.*-p[[:space:]]*[^[:space:]]*\\)#\\1$missing_bits#\" \"$audit_file\"\n", matchPattern)
	} else {
		fmt.Fprintf(&b, "            sed -i \"s#\\(%s.*-F[[:space:]]*perm=[^[:space:]]*\\)#\\1$missing_bits#\" \"$audit_file\"\n", matchPattern)
	}
	b.WriteString(`        fi
    fi
done

if [ "$found" -eq 0 ]; then
`)
	fmt.Fprintf(&b, "    echo \"%s\" >> \"$default_file\"\nfi\n", fullRule)
	return b.String(), nil
}
