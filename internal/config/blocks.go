package config

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxPlates is the number of plate slots in the stored layout.
const MaxPlates = 4

// Token marks a Params block written by this firmware family.
const Token uint32 = 0x48495645

// Storage offsets of the three blocks.
const (
	AddrIO     int64 = 0x000
	AddrParams int64 = 0x100
	AddrSensor int64 = 0x200
)

// SensorAddress is a 64-bit one-wire device address.
type SensorAddress uint64

func (a SensorAddress) String() string {
	return fmt.Sprintf("%016x", uint64(a))
}

// IO holds pin assignments. Heater duty and fan speed lines live on the
// I/O co-processor; Vaporizer and HeaterRelay are host GPIO offsets.
type IO struct {
	CRC                uint32
	Heartbeat          uint8
	TemperatureSensor  uint8
	HumiditySensor     uint8
	HumiditySensorType uint8
	Vaporizer          uint8
	HumidifierFan      uint8
	HeaterRelay        uint8
	Beeper             uint8
	Heater             [MaxPlates]uint8
	Fan                [MaxPlates]uint8
	ButtonLeft         uint8
	ButtonRight        uint8
	ButtonUp           uint8
	ButtonDown         uint8
	ButtonSelect       uint8
	LCDRs              uint8
	LCDEnable          uint8
	LCDData            [4]uint8
}

// Params holds operating limits. Temperatures are tenths of a degree
// Celsius.
type Params struct {
	CRC                  uint32
	Token                uint32
	Version              uint16
	NumberOfPlates       uint8
	MaxHeaterPower       uint8
	MinFanSpeed          uint8
	UsePWM               bool
	MaxConcurrentHeaters uint8
	_                    uint8
	HiveMaxTemp          int16 // zone high threshold
	HiveOverTemp         int16 // zone hard ceiling
	PlateOverTemp        int16
	PlateKp              float32
	PlateKi              float32
	PlateKd              float32
	HiveKp               float32
	HiveKi               float32
	HiveKd               float32
}

// Sensor holds the one-wire addresses of the plate and hive probes. A zero
// address is an unused slot.
type Sensor struct {
	CRC          uint32
	AddressPlate [MaxPlates]SensorAddress
	AddressHive  [MaxPlates]SensorAddress
}

// HiveSensors returns the configured hive probe addresses, skipping empty
// slots.
func (s *Sensor) HiveSensors() []SensorAddress {
	var out []SensorAddress
	for _, a := range s.AddressHive {
		if a != 0 {
			out = append(out, a)
		}
	}
	return out
}

var byteOrder = binary.LittleEndian

// encode serializes a block and stamps its CRC.
func encode(block any) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, block); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	byteOrder.PutUint32(b[:4], CRC(b[4:]))
	return b, nil
}

// decode parses raw into block and reports whether the stored CRC matches.
func decode(raw []byte, block any) (bool, error) {
	if err := binary.Read(bytes.NewReader(raw), byteOrder, block); err != nil {
		return false, err
	}
	return byteOrder.Uint32(raw[:4]) == CRC(raw[4:]), nil
}

func blockSize(block any) int {
	return binary.Size(block)
}
