package generate

import (
	"fmt"
	"strings"

	"portforge/internal/facts"
	"portforge/internal/symbolgraph"
)

const commonPrompt = `You are an expert C to Rust translator porting a C library one symbol at a time.
You produce idiomatic Rust code which behaves identically to the C code.
Do not include license headers or commentary in the generated code.
Assume all ifdefs are defined when reading C code.
Always use the same symbol names for Rust and C code. Do not switch to snake case.
Only port the symbols you are asked about.

Respond with a single JSON object of the form:
{"files": [{"path": "<relative path>", "contents": "<file contents>"}]}
Every file you mention must appear in the list with its full new contents.`

const bindingsPrompt = commonPrompt + `

Your task is to:
- Create a Rust stub (unimplemented function or identical struct) for each requested symbol
- Create FFI bindings for the C version of each requested symbol

The stubs will be exercised by a fuzz test comparing the Rust and C implementations,
so the FFI must be complete and correct.

- For functions: create a stub with the correct signature and an unimplemented!() body
- For structs: create an identical layout with proper field types and padding
- For typedefs: create an equivalent Rust type alias

All dependent symbols have already been ported and can be referenced.`

const fuzzPrompt = commonPrompt + `

Generate a cargo-fuzz fuzz test which exercises the requested symbols.
The test must:
1. Use libfuzzer_sys to generate random inputs
2. Call both the C implementation (via FFI) and the Rust implementation
3. Compare outputs and assert they are identical

Do not attempt to implement the symbols themselves.`

const implementPrompt = commonPrompt + `

Replace the existing stub implementations with complete Rust implementations that:
- Exactly match the C implementation's behavior
- Pass fuzz tests comparing outputs with the C version
- Use idiomatic Rust while maintaining exact behavioral compatibility

All C dependencies of the requested symbols have already been implemented in Rust
and can be called as needed. When you receive compiler errors or test failures
from an earlier attempt, analyze them and fix the implementation accordingly.`

func systemPrompt(phase Phase) string {
	switch phase {
	case PhaseBindings:
		return bindingsPrompt
	case PhaseTest:
		return fuzzPrompt
	default:
		return implementPrompt
	}
}

type promptInput struct {
	unit         *symbolgraph.Unit
	phase        Phase
	feedback     string
	verifiedDeps []string
	srcPath      string
	ffiPath      string
	fuzzPath     string
}

func userPrompt(in promptInput) string {
	var b strings.Builder

	switch in.phase {
	case PhaseBindings:
		b.WriteString("Create stubs and FFI bindings for the following symbols, and nothing else.\n\n")
	case PhaseTest:
		fmt.Fprintf(&b, "Create a differential fuzz test for the following symbols.\nWrite the fuzz test to this exact path: %s\n\n", in.fuzzPath)
	default:
		b.WriteString("Write the full Rust implementation for the following symbols, replacing their stubs.\n\n")
	}

	for _, sym := range in.unit.Symbols {
		writeSymbolSection(&b, sym)
	}

	fmt.Fprintf(&b, "Rust source path: %s\n", in.srcPath)
	fmt.Fprintf(&b, "FFI bindings path: %s\n", in.ffiPath)

	if in.unit.IsCycle() {
		b.WriteString("\nThese symbols are mutually recursive and must be ported together in one step.\n")
	}
	if len(in.verifiedDeps) > 0 {
		fmt.Fprintf(&b, "\nAlready ported and available: %s\n", strings.Join(in.verifiedDeps, ", "))
	}
	if feedback := strings.TrimSpace(in.feedback); feedback != "" {
		b.WriteString("\nYour previous attempt failed. Fix the following and try again:\n")
		b.WriteString(feedback)
		b.WriteString("\n")
	}
	return b.String()
}

func writeSymbolSection(b *strings.Builder, sym facts.Record) {
	fmt.Fprintf(b, "Symbol: %s\nKind: %s\nDefined in: %s:%d\n", sym.Name, sym.Kind, sym.File, sym.Line)
	if sig := strings.TrimSpace(sym.Signature); sig != "" {
		fmt.Fprintf(b, "Signature: %s\n", sig)
	}
	if def := strings.TrimSpace(sym.Definition); def != "" {
		fmt.Fprintf(b, "C definition:\n```c\n%s\n```\n", def)
	}
	b.WriteString("\n")
}
