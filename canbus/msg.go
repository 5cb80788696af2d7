package canbus

import (
	"encoding/binary"
	"errors"
)

const (
	CAN_SFF_MASK = 0x000007FF
	CAN_EFF_MASK = 0x1FFFFFFF
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000

	// size of a struct can_frame on the wire
	FRAME_LENGTH = 16
)

// errors
var (
	ERR_DATA_TOO_LONG = errors.New("data length exceeds 8 bytes")
	ERR_RAW_TOO_SHORT = errors.New("raw frame shorter than 16 bytes")
)

// CANMsg is a single frame on the bus. ID carries the full arbitration
// id; any node/command packing inside it belongs to the protocol layer.
type CANMsg struct {
	ID   uint32 // 11-bit standard or 29-bit extended identifier
	RTR  bool   // remote transmission request, no data
	Data []byte // raw payload up to 8 bytes. DLC is taken from len(Data).
}

// ToByteArray packs the message into the kernel can_frame layout:
// id in bytes 0-3 (little endian, flag bits included), DLC in byte 4,
// data starting at byte 8.
func (msg *CANMsg) ToByteArray() (raw []byte, err error) {
	if len(msg.Data) > 8 {
		return nil, ERR_DATA_TOO_LONG
	}

	raw = make([]byte, FRAME_LENGTH)

	oid := msg.ID
	if oid != oid&CAN_SFF_MASK {
		oid |= CAN_EFF_FLAG
	}
	if msg.RTR {
		oid |= CAN_RTR_FLAG
	}
	binary.LittleEndian.PutUint32(raw[0:4], oid)

	raw[4] = byte(len(msg.Data))
	copy(raw[8:], msg.Data)

	return
}

// MsgFromByteArray is the inverse of ToByteArray.
func MsgFromByteArray(raw []byte) (msg CANMsg, err error) {
	if len(raw) < FRAME_LENGTH {
		return msg, ERR_RAW_TOO_SHORT
	}

	oid := binary.LittleEndian.Uint32(raw[0:4])

	// determine ID
	if oid&CAN_EFF_FLAG != 0 {
		msg.ID = oid & CAN_EFF_MASK
	} else {
		msg.ID = oid & CAN_SFF_MASK
	}
	msg.RTR = oid&CAN_RTR_FLAG != 0

	dlc := raw[4]
	if dlc > 8 {
		dlc = 8
	}
	msg.Data = make([]byte, dlc)
	copy(msg.Data, raw[8:8+dlc])

	return
}
