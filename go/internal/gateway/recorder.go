package gateway

// Recorder observes connection and inbound message counts.
type Recorder interface {
	RecordActiveConnections(n int)
	RecordInboundMessage(messageType string, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordActiveConnections(int)         {}
func (nopRecorder) RecordInboundMessage(string, string) {}
