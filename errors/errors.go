package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse     Phase = "parse"     // REPL line and interface section parsing
	PhaseResolve   Phase = "resolve"   // named types and import providers
	PhaseEval      Phase = "eval"      // expression evaluation
	PhaseEncode    Phase = "encode"    // host values to engine arguments
	PhaseDecode    Phase = "decode"    // engine results to host values
	PhaseRuntime   Phase = "runtime"   // guest execution
	PhaseLinking   Phase = "linking"   // instantiation and import wiring
	PhaseCompose   Phase = "compose"   // adapter composition
	PhaseLoad      Phase = "load"      // component loading
	PhaseHost      Phase = "host"      // host function dispatch
	PhaseConfigure Phase = "configure" // CLI and config file handling
)

// Kind categorizes the error
type Kind string

const (
	KindSyntax            Kind = "syntax"
	KindUnboundVariable   Kind = "unbound_variable"
	KindAmbiguousName     Kind = "ambiguous_name"
	KindArity             Kind = "arity"
	KindTypeMismatch      Kind = "type_mismatch"
	KindTypeResolution    Kind = "type_resolution"
	KindTrap              Kind = "trap"
	KindMarshal           Kind = "marshal"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindInstantiation     Kind = "instantiation"
	KindComposition       Kind = "composition"
	KindMerge             Kind = "merge"
	KindStaleHandle       Kind = "stale_handle"

	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidData   Kind = "invalid_data"
	KindUnsupported   Kind = "unsupported"
	KindAllocation    Kind = "allocation"
	KindInvalidUTF8   Kind = "invalid_utf8"
	KindOverflow      Kind = "overflow"
	KindMissingImport Kind = "missing_import"
	KindNotFound      Kind = "not_found"
	KindInvalidInput  Kind = "invalid_input"
)

// Error is the structured error type used throughout the REPL
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	WitType string
	Detail  string
	Path    []string
	// Column is the 1-based input column for syntax errors, 0 when unknown
	Column int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Column > 0 {
		fmt.Fprintf(&b, " at column %d", e.Column)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WitType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.WitType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", WIT type ")
			b.WriteString(e.WitType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("WIT type ")
			b.WriteString(e.WitType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// HasKind reports whether err or any error in its chain is an *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Column sets the 1-based input column
func (b *Builder) Column(col int) *Builder {
	b.err.Column = col
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Syntax creates a syntax error pointing at an input token.
// pos is the 0-based byte offset of the token.
func Syntax(pos int, token, detail string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindSyntax,
		Column: pos + 1,
		Value:  token,
		Detail: fmt.Sprintf("%s near %q", detail, token),
	}
}

// UnboundVariable creates an error for an identifier with no binding
func UnboundVariable(name string) *Error {
	return &Error{
		Phase:  PhaseEval,
		Kind:   KindUnboundVariable,
		Value:  name,
		Detail: fmt.Sprintf("%q is not bound", name),
	}
}

// AmbiguousName creates an error for a function name exported by several components
func AmbiguousName(name string, providers []string) *Error {
	return &Error{
		Phase:  PhaseEval,
		Kind:   KindAmbiguousName,
		Value:  name,
		Detail: fmt.Sprintf("%q is exported by %s; qualify it as <component>::%s", name, strings.Join(providers, ", "), name),
	}
}

// Arity creates an argument count error
func Arity(function string, want, got int) *Error {
	return &Error{
		Phase:  PhaseEval,
		Kind:   KindArity,
		Value:  got,
		Detail: fmt.Sprintf("%s expects %d argument(s), got %d", function, want, got),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, witType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		WitType: witType,
	}
}

// TypeResolution creates an error for undefined or cyclic named types
func TypeResolution(path []string, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindTypeResolution,
		Path:   path,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Trap creates an error for a fault reported by the execution engine
func Trap(function string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Detail: fmt.Sprintf("%s trapped", function),
		Cause:  cause,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Marshal creates an error for malformed data crossing the engine boundary
func Marshal(phase Phase, path []string, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMarshal,
		Path:   path,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// SignatureMismatch creates an error for a provider whose export shape differs from the import
func SignatureMismatch(name, want, got string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindSignatureMismatch,
		Value:  name,
		Detail: fmt.Sprintf("%s: import expects %s, provider has %s", name, want, got),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// InvalidDiscriminant creates an invalid discriminant error for variants/enums
func InvalidDiscriminant(phase Phase, path []string, disc uint32, maxValid uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMarshal,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (max %d)", disc, maxValid),
		Value:  disc,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindOverflow,
		Path:    path,
		WitType: targetType,
		Detail:  fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:   value,
	}
}

// StaleHandle creates an error for a resource handle whose instance is gone
func StaleHandle(resource, instance string) *Error {
	return &Error{
		Phase:  PhaseEval,
		Kind:   KindStaleHandle,
		Value:  instance,
		Detail: fmt.Sprintf("handle to %s belongs to instance %s which is no longer live", resource, instance),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(component string, cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("instantiate %s", component),
		Cause:  cause,
	}
}

// Composition creates an error for a failed .compose step
func Composition(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompose,
		Kind:   KindComposition,
		Detail: detail,
		Cause:  cause,
	}
}

// Merge creates an error reported by the binary merge primitive
func Merge(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseCompose,
		Kind:   KindMerge,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Load creates a component loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedImport is a single import no provider could satisfy
type UnresolvedImport struct {
	Interface string // e.g., "wasi:cli/stdout@0.2.0", empty for root functions
	Function  string // e.g., "get-stdout"
	Reason    string // e.g., a signature mismatch description
}

// UnresolvedImportsError reports the imports left open by a partial resolution plan
type UnresolvedImportsError struct {
	Component string
	Imports   []UnresolvedImport
	// Mismatches holds the SignatureMismatch errors found while searching
	Mismatches []error
}

// NewUnresolvedImportsError creates an error from a list of "interface#function" strings
func NewUnresolvedImportsError(component string, imports []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Component: component,
		Imports:   make([]UnresolvedImport, 0, len(imports)),
	}
	for _, imp := range imports {
		iface, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, UnresolvedImport{
			Interface: iface,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (iface, function string) {
	i := strings.LastIndexByte(key, '#')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[resolve] missing_import: no imports specified"
	}

	var b strings.Builder
	if e.Component != "" {
		fmt.Fprintf(&b, "%s has %d unresolved import(s):\n", e.Component, len(e.Imports))
	} else {
		fmt.Fprintf(&b, "%d unresolved import(s):\n", len(e.Imports))
	}

	// Group by interface for cleaner output
	byIface := make(map[string][]UnresolvedImport)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byIface[imp.Interface]; !exists {
			order = append(order, imp.Interface)
		}
		byIface[imp.Interface] = append(byIface[imp.Interface], imp)
	}

	for _, iface := range order {
		b.WriteString("\n  ")
		if iface == "" {
			b.WriteString("(root)")
		} else {
			b.WriteString(iface)
		}
		b.WriteString(":\n")
		for _, imp := range byIface[iface] {
			b.WriteString("    - ")
			b.WriteString(imp.Function)
			if imp.Reason != "" {
				b.WriteString(" (")
				b.WriteString(imp.Reason)
				b.WriteByte(')')
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Unwrap exposes the recorded signature mismatches
func (e *UnresolvedImportsError) Unwrap() []error {
	return e.Mismatches
}

// Is reports whether target matches this error type
func (e *UnresolvedImportsError) Is(target error) bool {
	_, ok := target.(*UnresolvedImportsError)
	return ok
}
