// Package validate checks a generated artifact set against the original C
// implementation. It compiles the Rust project, then builds and runs the
// unit's differential fuzz target, and reduces the outcome to a verdict. A
// verdict describes the artifact; runner errors describe the validation
// machinery and never count against an artifact's defect budget.
package validate
