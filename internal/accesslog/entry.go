package accesslog

import (
	"fmt"
	"time"
)

const (
	unknownUserAgent = "Unknown User Agent"
	unknownIP        = "n/a"
)

// Entry holds what is known about a request once its response is complete.
type Entry struct {
	Method    string
	Status    int
	Path      string
	UserAgent string
	IP        string
	Duration  time.Duration
}

// String formats the entry as
//
//	METHOD STATUS - PATH - USERAGENT - IP - DURATIONms
//
// Path is the full request URI, global prefix and query included.
// Duration is truncated to whole milliseconds.
func (e Entry) String() string {
	ua := e.UserAgent
	if ua == "" {
		ua = unknownUserAgent
	}
	ip := e.IP
	if ip == "" {
		ip = unknownIP
	}
	return fmt.Sprintf("%s %d - %s - %s - %s - %dms",
		e.Method, e.Status, e.Path, ua, ip, e.Duration.Milliseconds())
}
