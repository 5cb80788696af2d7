package canbus

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCANMsg_ToByteArray(t *testing.T) {
	Convey("Standard frame format encodes correctly", t, func() {
		msg := &CANMsg{
			ID:   0x123,
			Data: []byte{0x34, 0x12},
		}
		raw, err := msg.ToByteArray()
		So(err, ShouldBeNil)

		Convey("ID gets set correctly", func() {
			So(raw[0:4], ShouldResemble, []byte{0x23, 0x01, 0x00, 0x00})
		})

		Convey("Data length is correctly set", func() {
			So(raw[4], ShouldEqual, 2)
		})

		Convey("Data is copied over", func() {
			So(raw[8:], ShouldResemble, []byte{0x34, 0x12, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
		})

		Convey("data length error is handled correctly", func() {
			msg.Data = make([]byte, 9)
			_, err := msg.ToByteArray()
			So(err, ShouldEqual, ERR_DATA_TOO_LONG)
		})
	})

	Convey("Extended identifiers carry the EFF flag", t, func() {
		msg := &CANMsg{ID: 0x1234}
		raw, err := msg.ToByteArray()
		So(err, ShouldBeNil)
		So(raw[3]&0x80, ShouldEqual, 0x80)

		decoded, err := MsgFromByteArray(raw)
		So(err, ShouldBeNil)
		So(decoded.ID, ShouldEqual, 0x1234)
	})

	Convey("RTR frames survive a round trip", t, func() {
		msg := &CANMsg{ID: 0x020, RTR: true}
		raw, err := msg.ToByteArray()
		So(err, ShouldBeNil)

		decoded, err := MsgFromByteArray(raw)
		So(err, ShouldBeNil)
		So(decoded.RTR, ShouldBeTrue)
		So(decoded.ID, ShouldEqual, 0x020)
		So(decoded.Data, ShouldBeEmpty)
	})
}

func TestMsgFromByteArray(t *testing.T) {
	Convey("decoding recovers id, dlc and data", t, func() {
		msg := &CANMsg{
			ID:   0x7FF,
			Data: []byte{0xDE, 0xAD, 0xBE, 0xEF},
		}
		raw, err := msg.ToByteArray()
		So(err, ShouldBeNil)

		decoded, err := MsgFromByteArray(raw)
		So(err, ShouldBeNil)
		So(decoded.ID, ShouldEqual, 0x7FF)
		So(decoded.Data, ShouldResemble, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	})

	Convey("a truncated buffer is rejected", t, func() {
		_, err := MsgFromByteArray(make([]byte, 8))
		So(err, ShouldEqual, ERR_RAW_TOO_SHORT)
	})
}

func BenchmarkCANMsg_ToByteArray(b *testing.B) {
	msg := &CANMsg{
		ID:   0x7FF,
		Data: make([]byte, 8),
	}

	for n := 0; n < b.N; n++ {
		msg.ToByteArray()
	}
}

func BenchmarkMsgFromByteArray(b *testing.B) {
	msg := &CANMsg{
		ID:   0x7FF,
		Data: make([]byte, 8),
	}
	raw, _ := msg.ToByteArray()

	for n := 0; n < b.N; n++ {
		MsgFromByteArray(raw)
	}
}
