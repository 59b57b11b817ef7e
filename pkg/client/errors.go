package client

import (
	"fmt"
	"net/netip"

	"github.com/pkg/errors"
)

var (
	// ErrNoAddresses indicates that resolution succeeded but produced no
	// addresses to dial.
	ErrNoAddresses = errors.New("no addresses resolved")

	// ErrDialAborted indicates that an in-flight dial terminated without
	// producing either a session or a dial error.
	ErrDialAborted = errors.New("dial aborted")

	// ErrShutdown indicates the client has been shut down.
	ErrShutdown = errors.New("client shut down")
)

// ExhaustedError is returned when every candidate address failed to connect.
// It retains the error of the last attempt only.
type ExhaustedError struct {
	// Addr is the last address tried.
	Addr netip.AddrPort
	// Err is the failure of the last attempt.
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all addresses failed, last %s: %v", e.Addr, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
