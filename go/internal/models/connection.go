package models

// ConnectionState represents the lifecycle state of the chat socket
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "DISCONNECTED"
	ConnectionStateConnecting   ConnectionState = "CONNECTING"
	ConnectionStateConnected    ConnectionState = "CONNECTED"
	ConnectionStateReconnecting ConnectionState = "RECONNECTING"
)
