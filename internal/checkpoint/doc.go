// Package checkpoint persists per-unit porting progress in SQLite. Records
// survive process restarts so an interrupted run resumes from verified work
// instead of regenerating it.
package checkpoint
