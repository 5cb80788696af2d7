package canbus

import "errors"

var ERR_TX_OVERFLOW = errors.New("tx queue full")

// CANBusInterface is the transport handle consumed by the control layer.
// Both directions are non-blocking: SendMsg either queues the frame or
// fails immediately, Recv returns a frame already received or ok=false.
//
// The interface carries no locking. Recv and SendMsg must be called from
// the single thread that runs the control cycle, or the embedder has to
// add its own synchronization.
type CANBusInterface interface {
	SendMsg(msg CANMsg) error
	Recv() (msg CANMsg, ok bool)
	Close() error
}
