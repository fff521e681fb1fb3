// Package comm provides the L0 device-side link core.
package comm

// L0 protocol is communicated between the host bridge and a small
// peripheral board (e.g. micro:bit) exposing sensors and actuators.
// It focuses on staying alive on an untrusted link: partial writes,
// radio noise and several sequential sessions over the same transport.
//
// Every packet is framed as:
//
//	[command id] [count/length] [payload...]
//
// The payload length is fully determined by the first two bytes, so there
// is no separate length prefix or checksum. A header that can't be trusted
// clears the receive buffer and the stream resynchronizes on the next read.
//
// The core is driven by a single cooperative task. Transport operations are
// non-blocking polls and the Link holds all retry/backoff state explicitly.
//
// Producer: host bridge
// Consumer: L0 firmware
