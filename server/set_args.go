package server

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	errSyntax        = errors.New("syntax error")
	errNotInteger    = errors.New("value is not an integer or out of range")
	errInvalidExpire = errors.New("invalid expire time in 'set' command")
)

// SetArgs holds the parsed arguments of a SET command.
type SetArgs struct {
	Key   string
	Value string
	TTL   *time.Duration
}

// ParseSetArgs parses "key value [EX seconds | PX milliseconds]".
func ParseSetArgs(args []string) (*SetArgs, error) {
	if len(args) < 2 {
		return nil, errSyntax
	}
	parsed := &SetArgs{Key: args[0], Value: args[1]}

	for i := 2; i < len(args); i++ {
		var unit time.Duration
		switch strings.ToLower(args[i]) {
		case "ex":
			unit = time.Second
		case "px":
			unit = time.Millisecond
		default:
			return nil, errSyntax
		}
		if parsed.TTL != nil {
			return nil, errSyntax
		}

		i++
		if i >= len(args) {
			return nil, errSyntax
		}
		n, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil {
			return nil, errNotInteger
		}
		if n <= 0 || n > int64(maxTTL/unit) {
			return nil, errInvalidExpire
		}
		ttl := time.Duration(n) * unit
		parsed.TTL = &ttl
	}
	return parsed, nil
}

// maxTTL keeps now+ttl inside time.Duration range.
const maxTTL = time.Duration(1<<63-1) / 2
