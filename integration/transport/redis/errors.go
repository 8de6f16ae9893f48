package redis

import "errors"

// ErrNoClient is returned when no URL is configured anywhere and the
// transport was created without WithClient.
var ErrNoClient = errors.New("redis transport: no client configured")
