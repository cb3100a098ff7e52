package pubsub

import "errors"

// ErrShutdown means the bus no longer accepts subscriptions
var ErrShutdown = errors.New("pubsub is shut down")
