package transport

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"go.bug.st/serial"

	"go-pianola/device"
)

// Serial writes binary frames to a wired controller.
type Serial struct {
	port   io.WriteCloser
	q      *queue
	logger *log.Logger
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud, queueSize int, logger *log.Logger) (*Serial, error) {
	if logger == nil {
		logger = log.Default()
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial %s", name)
	}
	logger.Info("serial port opened", "device", name, "baud", baud)
	return newSerial(p, queueSize, logger), nil
}

func newSerial(port io.WriteCloser, queueSize int, logger *log.Logger) *Serial {
	s := &Serial{port: port, logger: logger.WithPrefix("serial")}
	s.q = newQueue(queueSize, s.write, s.logger)
	return s
}

func (s *Serial) write(b []byte) error {
	n, err := s.port.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	s.logger.Debug("frame sent", "bytes", n, "cmd", b[3])
	return nil
}

// Send queues m as a frame. It never blocks.
func (s *Serial) Send(m device.Message) error {
	b, err := device.EncodeFrame(m)
	if err != nil {
		return err
	}
	return s.q.enqueue(b)
}

// Close flushes queued frames and closes the port.
func (s *Serial) Close() error {
	s.q.close()
	s.logger.Info("closing port")
	return s.port.Close()
}

// SerialPorts lists serial devices present on the system.
func SerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return ports, nil
}
