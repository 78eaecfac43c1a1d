package kernel

// EpId identifies a TCU endpoint on a tile.
type EpId uint16

// Endpoint layout of every tile. The first endpoints protect physical memory;
// the next four connect the tile multiplexer with the kernel.
const (
	PMPEndpoints = 4

	EPKernelSend  EpId = PMPEndpoints + 0
	EPKernelReply EpId = PMPEndpoints + 1
	EPUpcallRecv  EpId = PMPEndpoints + 2
	EPUpcallReply EpId = PMPEndpoints + 3

	FirstUserEP EpId = PMPEndpoints + 4
	TotalEPs    EpId = 64

	InvalidEP EpId = 0xFFFF
)
