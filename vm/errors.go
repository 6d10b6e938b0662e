package vm

import "fmt"

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// VMError marks fatal execution-engine errors (resource exhaustion and the
// like). They pass through every wrapping layer untouched.
type VMError interface {
	error
	vmError()
}

// InvalidSignatureError reports a malformed or oversized signature. It is
// always a caller bug and is never retried.
type InvalidSignatureError struct {
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	return "invalid signature: " + e.Reason
}

// AccessError reports a member that exists but may not be accessed from
// the lookup context.
type AccessError struct {
	Member string
	From   string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied: %s is not accessible from %s", e.Member, e.From)
}

// NoSuchMemberError reports a symbolic reference naming a missing member.
type NoSuchMemberError struct {
	Member string
}

func (e *NoSuchMemberError) Error() string {
	return "no such member: " + e.Member
}

// LinkageError reports a structural linking failure, such as a bootstrap
// target whose signature is not adaptable to the call site's.
type LinkageError struct {
	Msg   string
	Cause error
}

func (e *LinkageError) Error() string {
	if e.Cause != nil {
		return "linkage error: " + e.Msg + ": " + e.Cause.Error()
	}
	return "linkage error: " + e.Msg
}

func (e *LinkageError) Unwrap() error { return e.Cause }

// BootstrapLinkageError wraps any failure raised by, or detected in the
// result of, a bootstrap routine. Bootstrap failures are permanent for the
// call site.
type BootstrapLinkageError struct {
	Site  string
	Cause error
}

func (e *BootstrapLinkageError) Error() string {
	return fmt.Sprintf("bootstrap method error for %s: %v", e.Site, e.Cause)
}

func (e *BootstrapLinkageError) Unwrap() error { return e.Cause }

// ConcurrentResolutionError means a resolution publish found an unexpected
// value in its cache slot. It indicates a broken invariant.
type ConcurrentResolutionError struct {
	Key string
}

func (e *ConcurrentResolutionError) Error() string {
	return "concurrent resolution invariant broken for " + e.Key
}

// IncompatibleReceiverError is raised by a receiver guard in a direct
// invoke stub when the receiver is not an instance of the required type.
type IncompatibleReceiverError struct {
	Receiver string
	Expected string
}

func (e *IncompatibleReceiverError) Error() string {
	return fmt.Sprintf("incompatible receiver: %s is not an instance of %s", e.Receiver, e.Expected)
}

// WrongMethodTypeError reports a handle invoked or adapted with an
// incompatible signature.
type WrongMethodTypeError struct {
	Have string
	Want string
}

func (e *WrongMethodTypeError) Error() string {
	return fmt.Sprintf("wrong method type: have %s, want %s", e.Have, e.Want)
}

// ClassCastError reports a failed runtime type check or unboxing.
type ClassCastError struct {
	From string
	To   string
}

func (e *ClassCastError) Error() string {
	return fmt.Sprintf("cannot cast %s to %s", e.From, e.To)
}

// NullPointerError reports a null receiver, base or unboxing operand.
type NullPointerError struct {
	What string
}

func (e *NullPointerError) Error() string {
	return "null pointer: " + e.What
}

// IllegalArgumentError reports an argument rejected by an adapter, such as
// a spread array of the wrong length.
type IllegalArgumentError struct {
	Msg string
}

func (e *IllegalArgumentError) Error() string {
	return "illegal argument: " + e.Msg
}

// InitializationError reports a failed static initializer. The class stays
// erroneous.
type InitializationError struct {
	Class string
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization of %s failed: %v", e.Class, e.Cause)
}

func (e *InitializationError) Unwrap() error { return e.Cause }

// UnsupportedOperationError reports an operation a value does not allow,
// such as retargeting a constant call site.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return "unsupported operation: " + e.Op
}

// ResourceError is the out-of-code-space equivalent: stub or carrier-type
// generation ran out of room. It is a VMError.
type ResourceError struct {
	Resource string
	Limit    int
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("out of %s (limit %d)", e.Resource, e.Limit)
}

func (e *ResourceError) vmError() {}
