package async

import (
	"bufio"
	"io"
	"os"
)

// EnterKey is closed when a line is read from stdin, or stdin ends.
func EnterKey() <-chan struct{} {
	return lineRead(os.Stdin)
}

func lineRead(r io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bufio.NewScanner(r).Scan()
	}()
	return done
}
