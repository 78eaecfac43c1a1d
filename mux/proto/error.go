package proto

import "errors"

// Code is the error taxonomy shared by upcall replies and pexcall results.
type Code uint32

const (
	CodeNone Code = iota
	CodeNoPerm
	CodeInvArgs
	CodeNotSup
	CodeNoSpace
	CodeExists
	CodeNotFound
	CodeInvEP
	CodeAborted
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeNoPerm:
		return "no_perm"
	case CodeInvArgs:
		return "inv_args"
	case CodeNotSup:
		return "not_sup"
	case CodeNoSpace:
		return "no_space"
	case CodeExists:
		return "exists"
	case CodeNotFound:
		return "not_found"
	case CodeInvEP:
		return "inv_ep"
	case CodeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Error makes Code usable as an error value.
func (c Code) Error() string { return c.String() }

// CodeOf maps an error to its Code; non-Code errors become CodeAborted.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return CodeAborted
}

// Negated encodes a failure the way the trap convention returns it.
func (c Code) Negated() uint64 {
	return uint64(-int64(c))
}
