package async

import (
	"os"
	"os/signal"
	"syscall"
)

// Exit is closed on the first interrupt or termination signal.
func Exit() <-chan struct{} {
	done := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		signal.Stop(sig)
		close(done)
	}()
	return done
}
