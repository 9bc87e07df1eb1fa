// Package cardproto implements the framed APDU wire format and status
// word vocabulary for talking to an X1 card: command/response APDUs
// carried inside a length-prefixed frame so the
// NFC transport (which delivers byte chunks, not whole messages) can
// reassemble exactly one APDU per frame.
package cardproto

import (
	"encoding/binary"
	"fmt"
)

// headerSize is CLA, INS, P1, P2, plus a 2-byte big-endian data
// length, matching extended-length APDU framing.
const headerSize = 6

// Command is one outgoing application protocol data unit.
type Command struct {
	CLA, INS, P1, P2 byte
	Data             []byte
}

// Encode serializes cmd into a length-framed wire message: a 4-byte
// big-endian frame length, then CLA/INS/P1/P2, a 2-byte data length,
// then the data itself.
func (cmd Command) Encode() []byte {
	body := make([]byte, headerSize+len(cmd.Data))
	body[0], body[1], body[2], body[3] = cmd.CLA, cmd.INS, cmd.P1, cmd.P2
	binary.BigEndian.PutUint16(body[4:6], uint16(len(cmd.Data)))
	copy(body[headerSize:], cmd.Data)

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

// DecodeCommand parses a framed command, returning the number of
// bytes of frame consumed.
func DecodeCommand(frame []byte) (Command, int, error) {
	if len(frame) < 4 {
		return Command{}, 0, fmt.Errorf("cardproto: frame too short for length prefix")
	}
	bodyLen := int(binary.BigEndian.Uint32(frame[:4]))
	if len(frame) < 4+bodyLen || bodyLen < headerSize {
		return Command{}, 0, fmt.Errorf("cardproto: truncated frame")
	}
	body := frame[4 : 4+bodyLen]

	dataLen := int(binary.BigEndian.Uint16(body[4:6]))
	if headerSize+dataLen != bodyLen {
		return Command{}, 0, fmt.Errorf("cardproto: data length mismatch")
	}

	cmd := Command{
		CLA: body[0], INS: body[1], P1: body[2], P2: body[3],
		Data: append([]byte(nil), body[headerSize:]...),
	}
	return cmd, 4 + bodyLen, nil
}

// Response is one incoming APDU response: trailing data plus the
// 2-byte status word.
type Response struct {
	Data []byte
	SW   StatusWord
}

// Encode serializes resp the same framed way as Command, with the
// status word appended after the data.
func (resp Response) Encode() []byte {
	body := make([]byte, 2+len(resp.Data)+2)
	binary.BigEndian.PutUint16(body[:2], uint16(len(resp.Data)))
	copy(body[2:], resp.Data)
	binary.BigEndian.PutUint16(body[2+len(resp.Data):], uint16(resp.SW))

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

// DecodeResponse parses a framed response, returning bytes consumed.
func DecodeResponse(frame []byte) (Response, int, error) {
	if len(frame) < 4 {
		return Response{}, 0, fmt.Errorf("cardproto: frame too short for length prefix")
	}
	bodyLen := int(binary.BigEndian.Uint32(frame[:4]))
	if len(frame) < 4+bodyLen || bodyLen < 4 {
		return Response{}, 0, fmt.Errorf("cardproto: truncated frame")
	}
	body := frame[4 : 4+bodyLen]

	dataLen := int(binary.BigEndian.Uint16(body[:2]))
	if 2+dataLen+2 != bodyLen {
		return Response{}, 0, fmt.Errorf("cardproto: data length mismatch")
	}

	resp := Response{
		Data: append([]byte(nil), body[2:2+dataLen]...),
		SW:   StatusWord(binary.BigEndian.Uint16(body[2+dataLen:])),
	}
	return resp, 4 + bodyLen, nil
}
