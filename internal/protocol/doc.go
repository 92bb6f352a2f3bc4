// Package protocol implements the framed byte protocol spoken with the
// rendering worker process.
//
// A frame is a run of ':'-delimited ASCII header fields followed by a
// length-prefixed payload:
//
//	<identifier>:<kind>:<field>...:<payloadLength>:<payloadBytes>
//
// Header fields are delimiter-terminated so they stay readable in a hex dump,
// while the payload is length-prefixed so it may carry any byte, including
// ':' and '\n'.
//
// # Outbound commands
//
//	0:fgcolor:<hexColor>:
//	0:scale:<decimal>:
//	<id>:request:<width>:<height>:<true|false>:<length>:<source>
//
// Control commands (fgcolor, scale) always use identifier 0 and expect no
// reply.
//
// # Inbound responses
//
//	<id>:data:<length>:<record>
//	<id>:error:<length>:<message>
//
// Responses are decoded by a Scanner, an explicit state machine that accepts
// the stream in arbitrary chunks. A data record is encoded as
//
//	<pixelWidth>:<pixelHeight>:<locator>
//
// where the locator extends to the end of the payload. This is version 1 of
// the record format; see ParseResult.
package protocol
