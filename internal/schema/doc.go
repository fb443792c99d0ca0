// Package schema provides the canonical data model for fairlens.
//
// This package contains type definitions and the canonical JSON encoder
// only. All other internal packages import schema; schema imports nothing
// internal. This keeps it the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Demographic fields are categorical; "unknown" is an ordinary
//     category, never a nil or absent value, so downstream group-by
//     logic needs no null-checks
//   - Outcome and Source are mandatory on every Record
//   - Report bytes are produced only via MarshalCanonical, which yields
//     identical output for identical input on every run
package schema
