package corebt

import "fmt"

// PeripheralState represents the connection state of a remote peripheral
// as reported by the host stack.
type PeripheralState int

const (
	StateDisconnected  PeripheralState = 0 // Not connected to the central
	StateConnecting    PeripheralState = 1 // Connection is being established
	StateConnected     PeripheralState = 2 // Connected to the central
	StateDisconnecting PeripheralState = 3 // Disconnection is in progress
)

// String returns the string representation of the PeripheralState
func (s PeripheralState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// ATTError represents ATT protocol errors reported by the host stack.
// The coordinator never interprets these; they pass through to callers verbatim.
type ATTError int

const (
	ATTErrorSuccess                       ATTError = 0x00
	ATTErrorInvalidHandle                 ATTError = 0x01
	ATTErrorReadNotPermitted              ATTError = 0x02
	ATTErrorWriteNotPermitted             ATTError = 0x03
	ATTErrorInvalidPDU                    ATTError = 0x04
	ATTErrorInsufficientAuthentication    ATTError = 0x05
	ATTErrorRequestNotSupported           ATTError = 0x06
	ATTErrorInvalidOffset                 ATTError = 0x07
	ATTErrorInsufficientAuthorization     ATTError = 0x08
	ATTErrorPrepareQueueFull              ATTError = 0x09
	ATTErrorAttributeNotFound             ATTError = 0x0A
	ATTErrorAttributeNotLong              ATTError = 0x0B
	ATTErrorInsufficientEncryptionKeySize ATTError = 0x0C
	ATTErrorInvalidAttributeValueLength   ATTError = 0x0D
	ATTErrorUnlikelyError                 ATTError = 0x0E
	ATTErrorInsufficientEncryption        ATTError = 0x0F
	ATTErrorUnsupportedGroupType          ATTError = 0x10
	ATTErrorInsufficientResources         ATTError = 0x11
)

// Error makes ATTError usable as a transport error value.
func (e ATTError) Error() string {
	return fmt.Sprintf("ATT error 0x%02X", int(e))
}
