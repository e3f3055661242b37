package lsp

import (
	"io"
	"os"
)

// Stdio is the usual language server transport: requests on stdin, replies
// and notifications on stdout.
func Stdio() io.ReadWriteCloser {
	return &fileTransport{reader: os.Stdin, writer: os.Stdout}
}

type fileTransport struct {
	reader *os.File
	writer *os.File
}

func (t *fileTransport) Read(p []byte) (int, error)  { return t.reader.Read(p) }
func (t *fileTransport) Write(p []byte) (int, error) { return t.writer.Write(p) }

// Close only closes the read side so late writes to stdout do not fail.
func (t *fileTransport) Close() error {
	return t.reader.Close()
}
