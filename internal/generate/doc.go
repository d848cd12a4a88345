// Package generate produces Rust artifact sets for processing units by
// driving a chat-completion code collaborator. Function units go through
// three phases (FFI bindings plus stub, differential fuzz test, full
// implementation); type units stop after the bindings phase. Responses are
// checked for completeness before they are accepted.
package generate
