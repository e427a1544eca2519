// Package protocol
// Author: momentics <momentics@gmail.com>
//
// AMQP 0-9-1 wire protocol constants

package protocol

// Frame types
const (
	FrameMethod    FrameType = 1
	FrameHeader    FrameType = 2
	FrameBody      FrameType = 3
	FrameHeartbeat FrameType = 8

	// FrameProtocolHeader is a pseudo type for the 8-byte protocol header
	// sent once when the connection opens.
	FrameProtocolHeader FrameType = 'A'
)

const (
	FrameEnd = 0xCE

	// FrameHeaderSize is type(1) + channel(2) + size(4).
	FrameHeaderSize = 7
	// FrameOverhead is header plus frame-end octet.
	FrameOverhead = FrameHeaderSize + 1

	// FrameMinSize is the smallest frame_max a peer may negotiate.
	FrameMinSize = 4096
	// UnboundedFrameSize caps body frames when frame_max is 0.
	UnboundedFrameSize = 32 * FrameMinSize
)

var protocolHeader = [8]byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1}

// Class IDs
const (
	ClassConnection = 10
	ClassChannel    = 20
	ClassExchange   = 40
	ClassQueue      = 50
	ClassBasic      = 60
	ClassConfirm    = 85
	ClassTx         = 90
)

// Connection method IDs
const (
	MethodConnectionStart     = 10
	MethodConnectionStartOk   = 11
	MethodConnectionSecure    = 20
	MethodConnectionSecureOk  = 21
	MethodConnectionTune      = 30
	MethodConnectionTuneOk    = 31
	MethodConnectionOpen      = 40
	MethodConnectionOpenOk    = 41
	MethodConnectionClose     = 50
	MethodConnectionCloseOk   = 51
	MethodConnectionBlocked   = 60
	MethodConnectionUnblocked = 61
)

// Channel method IDs
const (
	MethodChannelOpen    = 10
	MethodChannelOpenOk  = 11
	MethodChannelFlow    = 20
	MethodChannelFlowOk  = 21
	MethodChannelClose   = 40
	MethodChannelCloseOk = 41
)

// Basic method IDs used by the engine
const (
	MethodBasicCancel   = 30
	MethodBasicCancelOk = 31
	MethodBasicPublish  = 40
	MethodBasicDeliver  = 60
)

// Reply codes
const (
	ReplySuccess            = 200
	ReplyContentTooLarge    = 311
	ReplyNoRoute            = 312
	ReplyNoConsumers        = 313
	ReplyConnectionForced   = 320
	ReplyInvalidPath        = 402
	ReplyAccessRefused      = 403
	ReplyNotFound           = 404
	ReplyResourceLocked     = 405
	ReplyPreconditionFailed = 406
	ReplyFrameError         = 501
	ReplySyntaxError        = 502
	ReplyCommandInvalid     = 503
	ReplyChannelError       = 504
	ReplyUnexpectedFrame    = 505
	ReplyResourceError      = 506
	ReplyNotAllowed         = 530
	ReplyNotImplemented     = 540
	ReplyInternalError      = 541
)
