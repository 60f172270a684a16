package async

// Promise runs f in a goroutine. The result is buffered, so the goroutine
// finishes even if nobody receives it.
func Promise[R any](f func() R) <-chan R {
	out := make(chan R, 1)
	go func() {
		out <- f()
	}()
	return out
}
