package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// still active on the same Modem.
	ErrLoopRunning = errors.New("loop already running")

	// ErrCommandTimeout is returned when the modem does not produce a final
	// result code within the command's response budget.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrUnsupportedManufacturer is returned when AT+CGMI does not report a
	// SIMCOM device.
	ErrUnsupportedManufacturer = errors.New("unsupported manufacturer")

	// ErrUnsupportedModel is returned when AT+CGMM reports a part this
	// driver has no socket table for.
	ErrUnsupportedModel = errors.New("unsupported model")
)

// Network attach errors.
var (
	// ErrNotReady is returned when the modem never reports Call Ready.
	ErrNotReady = errors.New("modem not ready")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry the attach.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrUnexpectedPinStatus is returned for SIM states this driver cannot
	// resolve on its own (PUK locked, PH_SIM states).
	ErrUnexpectedPinStatus = errors.New("unexpected SIM PIN status")

	// ErrNotRegistered is returned when GSM or GPRS network registration
	// does not complete within the polling budget.
	ErrNotRegistered = errors.New("not registered on network")

	// ErrNotAttached is returned when the GPRS attach does not complete
	// within the retry budget.
	ErrNotAttached = errors.New("GPRS attach failed")
)

// Data service and socket errors.
var (
	// ErrDataServiceTaken is returned when Data is called a second time.
	// The service is an exclusive handle over the modem's TCP/IP stack.
	ErrDataServiceTaken = errors.New("data service already taken")

	// ErrNoAvailableSockets is returned when every socket slot is Used or
	// awaiting reaping.
	ErrNoAvailableSockets = errors.New("no available sockets")

	// ErrUnableToConnect is returned when the modem reports CONNECT FAIL
	// for an outgoing connection.
	ErrUnableToConnect = errors.New("unable to connect")

	// ErrConnectTimeout is returned when neither CONNECT OK nor CONNECT
	// FAIL arrives within the connect budget.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrSocketClosed is returned for operations on a socket the remote
	// side has closed.
	ErrSocketClosed = errors.New("socket closed")

	// ErrReadTimeout is returned when no receive data arrives within the
	// read budget. The socket is unusable afterwards.
	ErrReadTimeout = errors.New("read timeout")

	// ErrMustReadBeforeWrite is returned when the modem refuses a send
	// while unread receive data is pending.
	ErrMustReadBeforeWrite = errors.New("must read pending data before write")

	// ErrWriteTimeout is returned when a previous send is never
	// acknowledged with SEND OK.
	ErrWriteTimeout = errors.New("write timeout")
)

// DNSError is the AT+CDNSGIP failure report.
type DNSError struct {
	// Code is the vendor error code (8 = DNS common error).
	Code uint8
}

func (e *DNSError) Error() string {
	return fmt.Sprintf("DNS resolution failed with code %d", e.Code)
}
