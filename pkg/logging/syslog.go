package logging

import (
	"fmt"
	"net"
	"os"
	"time"
)

// Syslog severity levels (RFC 3164).
const (
	SyslogError   = 3
	SyslogWarning = 4
	SyslogInfo    = 6
	SyslogDebug   = 7
)

// Syslog facilities (RFC 3164).
const (
	FacilityUser   = 1
	FacilityDaemon = 3
	FacilityLocal0 = 16
)

var facilities = map[string]int{
	"user":   FacilityUser,
	"daemon": FacilityDaemon,
	"local0": FacilityLocal0,
	"local1": FacilityLocal0 + 1,
	"local2": FacilityLocal0 + 2,
	"local3": FacilityLocal0 + 3,
	"local4": FacilityLocal0 + 4,
	"local5": FacilityLocal0 + 5,
	"local6": FacilityLocal0 + 6,
	"local7": FacilityLocal0 + 7,
}

// SyslogClient sends UDP syslog messages (RFC 3164).
type SyslogClient struct {
	conn        net.Conn
	hostname    string
	Facility    int
	MinSeverity int // 0 = no filter
}

// NewSyslogClient dials the syslog server at addr ("host:port").
func NewSyslogClient(addr string, facility int) (*SyslogClient, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s: %w", addr, err)
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "gtctl"
	}
	return &SyslogClient{conn: conn, hostname: hostname, Facility: facility}, nil
}

// Send sends msg with the given severity.
func (s *SyslogClient) Send(severity int, msg string) error {
	priority := s.Facility*8 + severity
	ts := time.Now().Format(time.Stamp)
	line := fmt.Sprintf("<%d>%s %s gtctl[%d]: %s", priority, ts, s.hostname, os.Getpid(), msg)
	_, err := s.conn.Write([]byte(line))
	return err
}

// ShouldSend reports whether severity passes the client's filter. Lower
// numbers are more severe.
func (s *SyslogClient) ShouldSend(severity int) bool {
	return s.MinSeverity == 0 || severity <= s.MinSeverity
}

// Close closes the connection.
func (s *SyslogClient) Close() error {
	return s.conn.Close()
}

// ParseSeverity converts a severity name to its numeric value, or 0 (no
// filter) for unrecognized names.
func ParseSeverity(name string) int {
	switch name {
	case "error":
		return SyslogError
	case "warning":
		return SyslogWarning
	case "info":
		return SyslogInfo
	case "debug":
		return SyslogDebug
	default:
		return 0
	}
}

// ParseFacility converts a facility name, defaulting to local0.
func ParseFacility(name string) int {
	if f, ok := facilities[name]; ok {
		return f
	}
	return FacilityLocal0
}
