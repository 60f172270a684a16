package async

// Job runs f in a goroutine. The channel is closed once f has returned.
func Job(f func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	return done
}
