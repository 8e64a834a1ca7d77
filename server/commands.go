package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/luoyjx/minikv/storage"
)

// echoDefault is returned by ECHO without a message.
const echoDefault = ""

func (s *Server) ping(args []string) Reply {
	if len(args) == 1 {
		return Bulk(args[0])
	}
	return Status("PONG")
}

func (s *Server) echo(args []string) Reply {
	if len(args) == 0 {
		return Status(echoDefault)
	}
	return Status(args[0])
}

func (s *Server) set(args []string) Reply {
	parsed, err := ParseSetArgs(args)
	if err != nil {
		return Error(err.Error())
	}
	s.store.Set(parsed.Key, parsed.Value, parsed.TTL)
	return Status("OK")
}

func (s *Server) get(args []string) Reply {
	value, ok := s.store.Get(args[0])
	if !ok {
		return Null()
	}
	return Bulk(value)
}

func (s *Server) ttl(args []string) Reply {
	return s.remaining(args[0], time.Second)
}

func (s *Server) pttl(args []string) Reply {
	return s.remaining(args[0], time.Millisecond)
}

// remaining reports the time to live of key in unit, rounded to nearest:
// -2 when the key does not exist, -1 when it has no deadline.
func (s *Server) remaining(key string, unit time.Duration) Reply {
	d, ok := s.store.TTL(key)
	switch {
	case !ok:
		return Int(-2)
	case d == storage.NoExpiry:
		return Int(-1)
	default:
		return Int(int64((d + unit/2) / unit))
	}
}

func (s *Server) exists(args []string) Reply {
	return Int(int64(s.store.Exists(args...)))
}

func (s *Server) dbsize(_ []string) Reply {
	return Int(int64(s.store.Len()))
}

func (s *Server) save(_ []string) Reply {
	if err := s.Save(); err != nil {
		return Error(err.Error())
	}
	return Status("OK")
}

func (s *Server) info(_ []string) Reply {
	st := s.Stats()

	var b strings.Builder
	b.WriteString("# Server\r\n")
	b.WriteString("minikv_version:" + Version + "\r\n")
	b.WriteString("run_id:" + st.ServerID + "\r\n")
	b.WriteString("uptime_in_seconds:" + strconv.FormatInt(st.UptimeSeconds, 10) + "\r\n")
	b.WriteString("# Persistence\r\n")
	if st.Persistence {
		b.WriteString("snapshot_enabled:1\r\n")
		b.WriteString("last_save_time:" + strconv.FormatInt(st.LastSaveUnix, 10) + "\r\n")
	} else {
		b.WriteString("snapshot_enabled:0\r\n")
	}
	b.WriteString("# Keyspace\r\n")
	b.WriteString("keys:" + strconv.Itoa(st.Keys) + "\r\n")
	return Bulk(b.String())
}

// client accepts connection setup commands sent by client libraries.
func (s *Server) client(_ []string) Reply {
	return Status("OK")
}
