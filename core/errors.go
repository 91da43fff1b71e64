package core

// Code is a stable error identifier shared by firmware and host. It is a
// string newtype so it compares cheaply and implements error without
// allocating.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK             Code = "ok"
	ErrOutOfRange  Code = "out_of_range"
	ErrBadLength   Code = "bad_length"
	ErrNoAck       Code = "no_ack"
	ErrVerify      Code = "verify_failed"
	ErrNotReady    Code = "not_ready"
	ErrBadAddress  Code = "bad_address"
	ErrUnsupported Code = "unsupported"
	ErrFailed      Code = "error"
)

// statusCodes fixes the wire index of each code. The order is part of the
// protocol: append only.
var statusCodes = []Code{
	OK,
	ErrOutOfRange,
	ErrBadLength,
	ErrNoAck,
	ErrVerify,
	ErrNotReady,
	ErrBadAddress,
	ErrUnsupported,
	ErrFailed,
}

// CodeOf extracts a Code from err, defaulting to ErrFailed.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return CodeOf(u.Unwrap())
	}
	return ErrFailed
}

// StatusOf returns the wire index for err.
func StatusOf(err error) uint32 {
	c := CodeOf(err)
	for i, sc := range statusCodes {
		if sc == c {
			return uint32(i)
		}
	}
	return uint32(len(statusCodes) - 1)
}

// CodeFromStatus maps a wire index back to its Code.
func CodeFromStatus(status uint32) Code {
	if int(status) < len(statusCodes) {
		return statusCodes[status]
	}
	return ErrFailed
}

// StatusNames lists code names in wire order, for the data dictionary.
func StatusNames() []string {
	names := make([]string, len(statusCodes))
	for i, c := range statusCodes {
		names[i] = string(c)
	}
	return names
}
