// Package etherlink holds the shared contracts of the EtherLink packet
// driver core: the port-I/O bus and physical-memory surfaces the driver is
// bound to, the interrupt vector table model, the register-level constants
// of the 3Com EtherLink controller families, and the NIC descriptor record
// the probe layer hands to the resident core.
//
// The packages built on top of it are:
//
//   - cpu: CPU feature detection and the one-shot dispatch profile
//   - dma: physical address checks, bounce buffers, cache coherency
//   - nic: the controller vtable and its PIO / bus-master variants
//   - irq: the two-tier interrupt service core and 8259A PIC handling
//   - driver: the Packet Driver API multiplexer and TSR services
//   - hwsim: an emulated ISA/PCI machine with EtherLink devices, used by
//     the tests
package etherlink
