package input

import (
	"fmt"
	"io"
	"os"
)

type device struct {
	path string
	file *os.File
}

func openDevice(path string) (*device, error) {
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open input device %s: %w", path, err)
	}

	return &device{path: path, file: file}, nil
}

// run decodes events until the device is closed or disappears. io.EOF is
// returned once the device has no more data.
func (d *device) run(handle func(Event)) error {
	buf := make([]byte, eventSize)
	for {
		if _, err := io.ReadFull(d.file, buf); err != nil {
			if err == io.ErrUnexpectedEOF {
				return fmt.Errorf("short read from input device %s: %w", d.path, err)
			}
			return err
		}
		handle(decodeEvent(buf))
	}
}

func (d *device) close() error {
	return d.file.Close()
}
