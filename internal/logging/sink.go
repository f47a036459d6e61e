package logging

import "os"

func zapConsoleSink() *os.File {
	return os.Stderr
}
