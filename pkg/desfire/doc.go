// Package desfire implements the byte-level command framing and
// cryptographic transforms for DESFire-class tokens using legacy DES/3DES
// secure messaging.
//
// Everything in this package is pure: functions take keys and payloads and
// return wire-ready APDU frames or parsed responses. No I/O happens here.
// The caller (a relay forwarding opaque bytes to a physical card) is
// responsible for transmitting frames and feeding responses back.
//
// Wire conventions:
//   - All multi-byte integers are little-endian.
//   - Commands are wrapped as ISO 7816 APDUs with CLA 0x90 and a trailing
//     Le of 0x00.
//   - Responses end in a two-byte status word; 0x91AF means the card
//     expects another frame under the additional-frame opcode 0xAF.
//   - When a MAC is present it is always the last 8 bytes of the payload.
//
// AES (EV2) secure messaging is deliberately not implemented; the CRC32
// primitive it would need exists only as a stub that fails loudly.
package desfire
