package etherlink

import "errors"

// Packet Driver Specification constants (v1.09/v1.11 register convention).

// DriverSignature is the string third-party utilities look for at a fixed
// offset from an installed packet driver's entry point.
const DriverSignature = "PKT DRVR"

// Function numbers, selected in AH on the API vector.
const (
	FuncDriverInfo     = 1
	FuncAccessType     = 2
	FuncReleaseType    = 3
	FuncSendPkt        = 4
	FuncTerminate      = 5
	FuncGetAddress     = 6
	FuncResetInterface = 7
	FuncGetParameters  = 10
	FuncAsSendPkt      = 11
	FuncSetRcvMode     = 20
	FuncGetRcvMode     = 21
	FuncSetMulticast   = 22
	FuncGetStatistics  = 24
	FuncSetAddress     = 25
)

// Interface classes.
const (
	ClassEthernet = 1
	ClassIEEE8023 = 11
)

// Driver classes per the specification's taxonomy.
const (
	DriverBasic    = 1
	DriverExtended = 2
	DriverHighPerf = 4
)

// Receive modes, in the specification's numbering. Mode 3 is the default.
type RxMode uint8

const (
	ModeOff        RxMode = 1 // receiver disabled
	ModeDirect     RxMode = 2 // station address only
	ModeBroadcast  RxMode = 3 // direct + broadcast
	ModeMulticast  RxMode = 4 // direct + broadcast + programmed multicast
	ModeAllMulti   RxMode = 5 // direct + broadcast + all multicast
	ModePromiscous RxMode = 6 // everything on the wire
)

func (m RxMode) Valid() bool { return m >= ModeOff && m <= ModePromiscous }

// API error codes, returned in DH with carry set.
const (
	CodeBadHandle     = 1
	CodeNoClass       = 2
	CodeNoType        = 3
	CodeNoNumber      = 4
	CodeBadType       = 5
	CodeNoMulticast   = 6
	CodeCantTerminate = 7
	CodeBadMode       = 8
	CodeNoSpace       = 9
	CodeTypeInUse     = 10
	CodeBadCommand    = 11
	CodeCantSend      = 12
	CodeCantSet       = 13
	CodeBadAddress    = 14
	CodeCantReset     = 15
)

// Sentinel errors of the core. API-facing ones carry a specification error
// code retrievable through ErrorCode.
var (
	ErrBadHandle     = &apiError{"bad handle", CodeBadHandle}
	ErrBadType       = &apiError{"bad type filter", CodeBadType}
	ErrTypeInUse     = &apiError{"type filter already registered", CodeTypeInUse}
	ErrNoSpace       = &apiError{"handle table full", CodeNoSpace}
	ErrBadMode       = &apiError{"unsupported receive mode", CodeBadMode}
	ErrCantSend      = &apiError{"can't transmit frame", CodeCantSend}
	ErrCantSet       = &apiError{"can't set station address", CodeCantSet}
	ErrCantReset     = &apiError{"can't reset interface", CodeCantReset}
	ErrCantTerminate = &apiError{"can't terminate driver", CodeCantTerminate}
	ErrBadCommand    = &apiError{"function not implemented", CodeBadCommand}
	ErrNoMulticast   = &apiError{"multicast aperture exhausted", CodeNoMulticast}

	// NotReady gates the API until install passes its final checkpoint.
	ErrNotReady = errors.New("driver not ready")

	// Hardware and resource conditions surfaced by the lower layers.
	ErrTxBusy            = errors.New("transmitter busy")
	ErrOutOfBuffers      = errors.New("packet buffer pool exhausted")
	ErrBufferUnreachable = errors.New("buffer not reachable by DMA engine and no bounce available")
	ErrFaulted           = errors.New("controller faulted")
	ErrTimeout           = errors.New("hardware wait exceeded bound")
	ErrUnsupported       = errors.New("operation not supported by controller")
)

type apiError struct {
	msg  string
	code uint8
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Code() uint8   { return e.code }

// ErrorCode maps an error to its Packet Driver code. Errors without a code
// of their own (hardware conditions surfaced through send, mostly) collapse
// to CodeCantSend, which is what the original driver reports for them.
func ErrorCode(err error) uint8 {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.code
	}
	if errors.Is(err, ErrNotReady) {
		return CodeBadCommand
	}
	return CodeCantSend
}
