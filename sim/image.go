package sim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sigurn/crc8"
)

// An EEPROM image is the raw store followed by one CRC-8/MAXIM byte over it.

var imageCRC = crc8.MakeTable(crc8.CRC8_MAXIM)

var ErrImageChecksum = errors.New("eeprom_image_checksum")

// SaveImage writes the store and its checksum to w.
func (e *EEPROM) SaveImage(w io.Writer) error {
	data := e.Snapshot()
	data = append(data, crc8.Checksum(data, imageCRC))
	_, err := w.Write(data)
	return err
}

// LoadImage replaces the store with an image read from r.
func (e *EEPROM) LoadImage(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(raw) != e.Size()+1 {
		return fmt.Errorf("eeprom image is %d bytes, want %d", len(raw), e.Size()+1)
	}
	data, sum := raw[:len(raw)-1], raw[len(raw)-1]
	if crc8.Checksum(data, imageCRC) != sum {
		return ErrImageChecksum
	}
	return e.Restore(data)
}

// SaveImageFile writes the image to path, replacing it atomically.
func (e *EEPROM) SaveImageFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := e.SaveImage(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadImageFile loads the image at path. A missing file leaves the store
// erased and is not an error.
func (e *EEPROM) LoadImageFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return e.LoadImage(f)
}
