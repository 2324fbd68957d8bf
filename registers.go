package etherlink

// EtherLink register-level contracts shared by the controller families.
// Offsets are relative to the I/O base in the NIC descriptor.
//
// The command/status pair lives at the same offset in every family; all
// other registers are window-banked on the PIO parts and flat on the
// bus-master parts.

const (
	// Command register (write) and status register (read), all families.
	RegCommand = 0x0E
	RegStatus  = 0x0E

	// Window 1 (operating set, PIO parts).
	RegTxFIFO   = 0x00 // write: length word, pad word, then frame data
	RegRxFIFO   = 0x00 // read: frame data
	RegRxStatus = 0x08
	RegTxStatus = 0x0B // 8-bit, pops the status stack on read
	RegTxFree   = 0x0C // bytes free in the TX FIFO

	// Window 2: station address, six bytes at offsets 0-5.
	RegStationAddr = 0x00

	// Window 4 (diagnostics).
	RegNetDiag = 0x06
	RegMedia   = 0x0A

	// Window 6: statistics block, cleared by reading.
	RegStatsTxFrames = 0x06
	RegStatsRxFrames = 0x07

	// Bus-master list engine (3C515 and the PCI families).
	RegPktStatus   = 0x20
	RegDownListPtr = 0x24
	RegDownPoll    = 0x2D
	RegUpPktStatus = 0x30
	RegUpListPtr   = 0x38
	RegUpPoll      = 0x3D
)

// Commands are written to RegCommand as op<<11 | operand.
const (
	CmdGlobalReset   = 0 << 11
	CmdSelectWindow  = 1 << 11 // 0x0800 | window
	CmdRxDisable     = 3 << 11
	CmdRxEnable      = 4 << 11
	CmdRxReset       = 5 << 11
	CmdRxDiscard     = 8 << 11
	CmdTxEnable      = 9 << 11
	CmdTxDisable     = 10 << 11
	CmdTxReset       = 11 << 11
	CmdAckInterrupt  = 13 << 11
	CmdSetIntrEnable = 14 << 11
	CmdSetRxFilter   = 16 << 11
	CmdStatsEnable   = 21 << 11
	CmdStatsDisable  = 22 << 11
)

// Status register bits. CmdInProgress gates every command issue; the rest
// are latched interrupt causes acknowledged through CmdAckInterrupt.
const (
	StatIntLatch       = 0x0001
	StatAdapterFailure = 0x0002
	StatTxComplete     = 0x0004
	StatTxAvailable    = 0x0008
	StatRxComplete     = 0x0010
	StatRxEarly        = 0x0020
	StatIntReq         = 0x0040
	StatStatsFull      = 0x0080
	StatDMADone        = 0x0100
	StatDownComplete   = 0x0200
	StatUpComplete     = 0x0400
	StatCmdInProgress  = 0x1000
)

// StatCommonCauses is the tiny-path subset: everything else forces the full
// ISR path.
const StatCommonCauses = StatIntLatch | StatTxComplete | StatTxAvailable |
	StatRxComplete | StatDownComplete | StatUpComplete

// RX status register: bits 0-10 length, bits 13-11 error code, bit 14 error,
// bit 15 packet incomplete.
const (
	RxStatusLenMask    = 0x07FF
	RxStatusErrMask    = 0x3800
	RxStatusErrShift   = 11
	RxStatusError      = 0x4000
	RxStatusIncomplete = 0x8000
)

// RX error codes, from the three-bit field above.
const (
	RxErrOverrun = iota
	RxErrOversize
	RxErrDribble
	RxErrRunt
	RxErrAlign
	RxErrCRC
	RxErrCodes // count, sizes the sub-counter array
)

// TX status register (8-bit, self-clearing on read).
const (
	TxStatusComplete    = 0x01
	TxStatusDeferred    = 0x02
	TxStatusAborted     = 0x04
	TxStatusSingleColl  = 0x08
	TxStatusMultiColl   = 0x10
	TxStatusUnderrun    = 0x20
	TxStatusJabber      = 0x40
	TxStatusMaxColl     = 0x80
	TxStatusDuplexWarn  = 0x82 // synthetic: duplex mismatch, a warning not an error
	TxStatusErrorBits   = TxStatusAborted | TxStatusUnderrun | TxStatusJabber | TxStatusMaxColl
	TxStatusStackedMax  = 4 // reads per ISR visit; the FIFO stacks at most this deep
)

// NET_DIAG bits of interest.
const (
	NetDiagSQE      = 0x0200 // AUI SQE heartbeat
	NetDiagLinkBeat = 0x0800 // 10BASE-T link integrity
)

// RX filter bits for CmdSetRxFilter.
const (
	FilterStation   = 0x01
	FilterMulticast = 0x02
	FilterBroadcast = 0x04
	FilterPromisc   = 0x08
)

// Bus-master descriptor layout: 16 bytes, little-endian, four dwords.
const (
	DescSize = 16

	DescNext     = 0 // next descriptor physical address, 0 terminates
	DescStatus   = 4 // download: frame header; upload: packet status
	DescFragAddr = 8
	DescFragLen  = 12

	// Fragment length dword flags (download side).
	FragLast     = 1 << 31
	FragIntr     = 1 << 30
	FragLenMask  = 0x00001FFF

	// Upload packet status dword.
	UpComplete = 1 << 15
	UpError    = 1 << 14
	UpLenMask  = 0x00001FFF

	// Download status-word ownership: the driver sets Posted when handing
	// a slot to the list engine; the engine replaces it with Done.
	DnPosted = 1 << 31
	DnDone   = 1 << 30
)

// 8259A programmable interrupt controller ports and commands.
const (
	PICMasterCmd  = 0x20
	PICMasterData = 0x21
	PICSlaveCmd   = 0xA0
	PICSlaveData  = 0xA1
	PICEOI        = 0x20 // non-specific end of interrupt
)

// PCI command register bits honored by the Vortex and later families.
const (
	PCICmdIOSpace   = 0x0001
	PCICmdBusMaster = 0x0004
)

// Link-layer limits.
const (
	EthHeaderLen  = 14
	EthMinFrame   = 60 // without FCS
	EthMaxFrame   = 1514
	EthAddrLen    = 6
	EthTypeOffset = 12
)
