package status

import (
	"runtime"
	"strings"
)

// maxFrames bounds RichStatus the same way the upstream implementation
// bounds its stack chain: four frames is enough to see where an error
// originated and where it was amended on the way up, without allocating
// an unbounded slice per error.
const maxFrames = 4

type frame struct {
	msg  string
	file string
	line int
}

// RichStatus is a bounded file/line/message error chain. Zero value is
// success. Construct with MakeErr, extend with Amend.
type RichStatus struct {
	frames [maxFrames]frame
	n      int
}

// Success returns the zero-value, non-error RichStatus.
func Success() RichStatus {
	return RichStatus{}
}

// MakeErr creates a new RichStatus with one frame.
func MakeErr(msg, file string, line int) RichStatus {
	var rs RichStatus
	rs.frames[0] = frame{msg: msg, file: file, line: line}
	rs.n = 1
	return rs
}

// Amend returns a copy of inner with one more frame appended, unless the
// frame capacity is already exhausted, in which case inner is returned
// unchanged (the first four frames, innermost first, are kept; later
// amendments are dropped rather than shifting earlier frames out).
func Amend(inner RichStatus, msg, file string, line int) RichStatus {
	rs := inner
	if rs.n < maxFrames {
		rs.frames[rs.n] = frame{msg: msg, file: file, line: line}
		rs.n++
	}
	return rs
}

// Here creates a new RichStatus with one frame, capturing the caller's
// file and line automatically — the Go equivalent of the reference's
// F_MAKE_ERR(msg) macro, which stamps __FILE__/__LINE__ at the call site.
func Here(msg string) RichStatus {
	_, file, line, _ := runtime.Caller(1)
	return MakeErr(msg, file, line)
}

// AmendHere is Amend with the caller's file and line captured
// automatically, the equivalent of F_AMEND_ERR(inner, msg).
func AmendHere(inner RichStatus, msg string) RichStatus {
	_, file, line, _ := runtime.Caller(1)
	return Amend(inner, msg, file, line)
}

// IsError reports whether rs carries at least one frame.
func (rs RichStatus) IsError() bool { return rs.n > 0 }

// IsSuccess reports whether rs carries no frames.
func (rs RichStatus) IsSuccess() bool { return rs.n == 0 }

// InnerFile returns the file of the innermost (first-recorded) frame, or
// "" if rs is a success.
func (rs RichStatus) InnerFile() string {
	if rs.n == 0 {
		return ""
	}
	return rs.frames[0].file
}

// InnerLine returns the line of the innermost frame, or 0 if rs is a
// success.
func (rs RichStatus) InnerLine() int {
	if rs.n == 0 {
		return 0
	}
	return rs.frames[0].line
}

// Error implements the error interface so a RichStatus can be returned and
// wrapped like any other Go error at API boundaries.
func (rs RichStatus) Error() string {
	if rs.n == 0 {
		return "success"
	}
	var b strings.Builder
	for i := 0; i < rs.n; i++ {
		f := rs.frames[i]
		b.WriteString("\n\tin ")
		b.WriteString(f.file)
		b.WriteString(":")
		b.WriteString(itoa(f.line))
		b.WriteString(": ")
		b.WriteString(f.msg)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
