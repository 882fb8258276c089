package qbank

// WithClock pins the store clock in tests.
var WithClock = withClock
