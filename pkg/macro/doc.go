// Package macro implements the closed library of text-generating macros
// used by remediation templates. Each macro is a pure function from keyword
// parameters to a fragment of its target format: POSIX-ish shell for the
// "shell" format, or an Ansible-style YAML task list for the "automation"
// format.
//
// Macros never perform I/O and are referentially transparent: the same
// parameters always produce the same output. Downstream validation and the
// test suite rely on this to make structural assertions against rendered
// fragments (for example, that a generated audit rule targets a specific
// rules.d path).
//
// The library is a closed, statically enumerable registry. Adding a macro
// means adding a registry entry with a parameter specification; there is no
// open-ended dynamic dispatch. A macro given an invalid parameter value
// fails with an error naming that parameter rather than falling back to a
// default semantics.
package macro
