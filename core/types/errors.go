package types

import "fmt"

// Transaction-level error taxonomy (spec §7). These are compared with
// errors.Is/errors.As by callers the way erigon's state-test harness
// distinguishes UnsupportedForkError from wrapped lower-level causes.
var (
	// ErrAccountInUse: lock conflict; retryable.
	ErrAccountInUse = fmt.Errorf("account in use")
	// ErrAccountLoadedTwice: same key referenced twice in one transaction; not retryable.
	ErrAccountLoadedTwice = fmt.Errorf("account loaded twice")
	// ErrAccountNotFound: fee payer or referenced account missing.
	ErrAccountNotFound = fmt.Errorf("account not found")
	// ErrBlockhashNotFound: recent_blockhash absent from the queue.
	ErrBlockhashNotFound = fmt.Errorf("blockhash not found")
	// ErrDuplicateSignature: signature seen on this fork.
	ErrDuplicateSignature = fmt.Errorf("duplicate signature")
	// ErrInsufficientFundsForFee: fee payer cannot cover the fee.
	ErrInsufficientFundsForFee = fmt.Errorf("insufficient funds for fee")
	// ErrMissingSignatureForFee: nonzero fee but no signature.
	ErrMissingSignatureForFee = fmt.Errorf("missing signature for fee")
)

// InstructionErrorCause enumerates the causes an instruction error can
// carry (spec §4.5, §7).
type InstructionErrorCause int

const (
	// CauseUnspecified is the zero value; never returned by the core.
	CauseUnspecified InstructionErrorCause = iota
	// CauseResultWithNegativeLamports: an account's lamports would go negative.
	CauseResultWithNegativeLamports
	// CauseUnauthorizedWrite: a non-owner attempted to mutate data/owner/executable
	// or to decrease lamports.
	CauseUnauthorizedWrite
	// CauseLamportsImbalance: the sum of lamports in vs. out of the instruction's
	// account set did not match.
	CauseLamportsImbalance
	// CauseExecutableDataModified: an executable account's data was changed.
	CauseExecutableDataModified
	// CauseProgramNotFound: no handler is registered for the instruction's program id.
	CauseProgramNotFound
	// CauseCustom wraps an arbitrary error returned by a ProcessInstruction handler.
	CauseCustom
)

func (c InstructionErrorCause) String() string {
	switch c {
	case CauseResultWithNegativeLamports:
		return "ResultWithNegativeLamports"
	case CauseUnauthorizedWrite:
		return "UnauthorizedWrite"
	case CauseLamportsImbalance:
		return "LamportsImbalance"
	case CauseExecutableDataModified:
		return "ExecutableDataModified"
	case CauseProgramNotFound:
		return "ProgramNotFound"
	case CauseCustom:
		return "Custom"
	default:
		return "Unspecified"
	}
}

// InstructionError reports that instruction Index aborted the transaction
// with the given Cause (spec §7). Cause may additionally wrap an Err
// returned by the offending ProcessInstruction handler.
type InstructionError struct {
	Index int
	Cause InstructionErrorCause
	Err   error
}

func (e *InstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instruction %d failed: %s: %v", e.Index, e.Cause, e.Err)
	}
	return fmt.Sprintf("instruction %d failed: %s", e.Index, e.Cause)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// NewInstructionError builds an *InstructionError.
func NewInstructionError(index int, cause InstructionErrorCause, err error) *InstructionError {
	return &InstructionError{Index: index, Cause: cause, Err: err}
}

// Retryable reports whether a failing transaction may be resubmitted with
// a fresh blockhash on the same fork (spec §7, testable property 3): gate
// failures that occur before the signature is committed to the status
// cache are retryable, everything recorded in the status cache is not.
func Retryable(err error) bool {
	switch err {
	case ErrBlockhashNotFound, ErrDuplicateSignature, ErrAccountNotFound, ErrAccountInUse:
		return true
	default:
		return false
	}
}
