package audio

// Drain reads from ch until it is closed, discarding all values. Use it to
// prevent goroutine leaks when a streaming channel's contents are not needed,
// e.g. the frame channel of an abandoned capture handle.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
