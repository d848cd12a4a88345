// Package facts loads extracted symbol facts for a C codebase. A facts file
// is the JSON or YAML output of an external parser: one record per symbol
// with its kind, location, and the names of symbols it depends on. Records
// are schema-validated on load and can be filtered by source path globs.
package facts
