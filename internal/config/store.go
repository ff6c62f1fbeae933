// Package config persists the device configuration as three checksummed
// binary blocks (IO, Params, Sensor) in a byte-addressable store such as an
// EEPROM image file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
)

var (
	// ErrIntegrity is returned when a block's stored CRC does not match its
	// contents.
	ErrIntegrity = errors.New("checksum mismatch")

	// ErrThresholds is returned when the zone hard ceiling is not above the
	// high threshold.
	ErrThresholds = errors.New("hive over-temperature must be above hive max temperature")
)

// Storage is random-access persistent memory.
type Storage interface {
	io.ReaderAt
	io.WriterAt
}

// Store holds the in-memory copy of the configuration blocks. Not safe for
// concurrent use.
type Store struct {
	storage Storage

	IO     IO
	Params Params
	Sensor Sensor
}

// NewStore returns a store backed by s, holding factory defaults until Load
// is called.
func NewStore(s Storage) *Store {
	st := &Store{storage: s}
	st.Reset()
	return st
}

// Load reads all blocks and verifies them. A Params block without the
// expected token is treated as a fresh device: defaults are written and
// loading continues. Any checksum mismatch fails the load without
// substituting defaults.
func (s *Store) Load() error {
	log.Printf("config: loading")
	rawIO, err := s.read(AddrIO, blockSize(&s.IO))
	if err != nil {
		return fmt.Errorf("read io block: %w", err)
	}
	rawParams, err := s.read(AddrParams, blockSize(&s.Params))
	if err != nil {
		return fmt.Errorf("read params block: %w", err)
	}
	rawSensor, err := s.read(AddrSensor, blockSize(&s.Sensor))
	if err != nil {
		return fmt.Errorf("read sensor block: %w", err)
	}

	var (
		ioBlock     IO
		paramsBlock Params
		sensorBlock Sensor
	)
	okParams, err := decode(rawParams, &paramsBlock)
	if err != nil {
		return fmt.Errorf("decode params block: %w", err)
	}

	if paramsBlock.Token != Token {
		log.Printf("warn: config: no token found, writing defaults")
		s.Reset()
		return s.Save()
	}

	okIO, err := decode(rawIO, &ioBlock)
	if err != nil {
		return fmt.Errorf("decode io block: %w", err)
	}
	okSensor, err := decode(rawSensor, &sensorBlock)
	if err != nil {
		return fmt.Errorf("decode sensor block: %w", err)
	}

	switch {
	case !okParams:
		return fmt.Errorf("params block: %w", ErrIntegrity)
	case !okIO:
		return fmt.Errorf("io block: %w", ErrIntegrity)
	case !okSensor:
		return fmt.Errorf("sensor block: %w", ErrIntegrity)
	}

	if paramsBlock.NumberOfPlates > MaxPlates {
		paramsBlock.NumberOfPlates = MaxPlates
	}
	if err := paramsBlock.Validate(); err != nil {
		return fmt.Errorf("params block: %w", err)
	}

	s.IO, s.Params, s.Sensor = ioBlock, paramsBlock, sensorBlock
	return nil
}

// Save stamps fresh checksums on all blocks and writes them.
func (s *Store) Save() error {
	log.Printf("config: saving")
	blocks := []struct {
		name  string
		addr  int64
		block any
	}{
		{"io", AddrIO, &s.IO},
		{"params", AddrParams, &s.Params},
		{"sensor", AddrSensor, &s.Sensor},
	}
	for _, b := range blocks {
		raw, err := encode(b.block)
		if err != nil {
			return fmt.Errorf("encode %s block: %w", b.name, err)
		}
		if _, err := s.storage.WriteAt(raw, b.addr); err != nil {
			return fmt.Errorf("write %s block: %w", b.name, err)
		}
	}
	s.stampCRCs()
	return nil
}

// Reset replaces the in-memory blocks with factory defaults and stamps their
// checksums. Storage is not touched.
func (s *Store) Reset() {
	s.IO = DefaultIO()
	s.Params = DefaultParams()
	s.Sensor = DefaultSensor()
	s.stampCRCs()
}

func (s *Store) stampCRCs() {
	if raw, err := encode(&s.IO); err == nil {
		s.IO.CRC = byteOrder.Uint32(raw)
	}
	if raw, err := encode(&s.Params); err == nil {
		s.Params.CRC = byteOrder.Uint32(raw)
	}
	if raw, err := encode(&s.Sensor); err == nil {
		s.Sensor.CRC = byteOrder.Uint32(raw)
	}
}

// read returns n bytes at off. Bytes past the end of the storage read as
// zero, like an erased part.
func (s *Store) read(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := s.storage.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	for i := got; i < n; i++ {
		buf[i] = 0
	}
	return buf, nil
}
