// Package hostproto names the host-USB command tags the core
// dispatches on: the counterpart to cardproto's card-side vocabulary,
// for the other end of the wire.
package hostproto

// CommandTag is the 16-bit command identifier carried by every framed
// USB packet.
type CommandTag uint16

const (
	// DeviceInfo requests the device's model/firmware identification.
	DeviceInfo CommandTag = 0x0001
	// StartDeviceAuthentication begins the host-device authentication
	// handshake; completing it advances onboarding past DeviceAuth.
	StartDeviceAuthentication CommandTag = 0x0002
	// StartExportWallet begins a watch-only export of a wallet's public
	// material.
	StartExportWallet CommandTag = 0x0003
	// ReadyStatePacket is sent by the host once it has finished
	// negotiating and is ready to dispatch application commands.
	ReadyStatePacket CommandTag = 0x0004
	// AppDispatch carries an applet-ID-prefixed envelope for one of the
	// wallet-flow applets; an unrecognized applet ID reports
	// UnknownApp and leaves the flow unchanged.
	AppDispatch CommandTag = 0x00FF
)

// AppletID identifies which wallet-flow applet an AppDispatch envelope
// targets.
type AppletID uint16

const (
	AppletWalletManager AppletID = 0x0001
	AppletSettings       AppletID = 0x0002
)
