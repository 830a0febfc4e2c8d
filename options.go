package att

import "github.com/sirupsen/logrus"

// ServerOption configures a Server at construction time, in the
// spirit of the teacher's Lnx* functional options (option_linux.go):
// a closure over the concrete type rather than a config struct,
// applied left to right.
type ServerOption func(*Server)

// WithLocalMTU overrides the server's advertised local MTU (the value
// used on the local side of an Exchange MTU Request/Response). The
// default is defaultMTU (23), the BLE minimum.
func WithLocalMTU(mtu uint16) ServerOption {
	return func(s *Server) {
		if mtu < defaultMTU {
			mtu = defaultMTU
		}
		s.localMTU = mtu
	}
}

// WithLogger overrides the server's logrus entry. The default logs to
// the standard logger with no extra fields.
func WithLogger(log *logrus.Entry) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithNotificationSink registers the sink that receives inbound
// Handle Value Notifications and Indications. Without this option,
// notifications and indications are accepted (and indications
// confirmed) but their values are discarded.
func WithNotificationSink(sink NotificationSink) ServerOption {
	return func(s *Server) { s.sink = sink }
}

// WithPrepareQueueCapacity overrides the maximum combined length of a
// connection's queued Prepare Write entries. The default is
// maxPrepareQueueLen. Applies to connections created after the option
// is set (i.e. pass it to NewServer, not after Connect).
func WithPrepareQueueCapacity(n int) ServerOption {
	return func(s *Server) { s.prepQueueCap = n }
}
