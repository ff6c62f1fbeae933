package config

import (
	"bytes"
	"errors"
	"hash/crc32"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imageSize = 1024

func TestCRCKnownValues(t *testing.T) {
	assert.Equal(t, uint32(0xffffffff), CRC(nil))
	assert.Equal(t, uint32(0x098494f3), CRC([]byte("123456789")))
	assert.Equal(t, uint32(0x6c24028d), CRC([]byte{0, 0}))
	// A single byte agrees with IEEE CRC-32; longer inputs do not because of
	// the per-byte inversion.
	assert.Equal(t, crc32.ChecksumIEEE([]byte{0x5a}), CRC([]byte{0x5a}))
	assert.NotEqual(t, crc32.ChecksumIEEE([]byte("123456789")), CRC([]byte("123456789")))
}

func TestFirstBootWritesDefaults(t *testing.T) {
	mem := NewMemStorage(imageSize)
	s := NewStore(mem)
	s.Params.MaxHeaterPower = 1

	require.NoError(t, s.Load())

	assert.Equal(t, DefaultParams().MaxHeaterPower, s.Params.MaxHeaterPower)
	assert.Equal(t, Token, s.Params.Token)
	assert.False(t, bytes.Equal(mem.Data, make([]byte, imageSize)), "defaults were not written")

	// A second load reads back what was written.
	again := NewStore(mem)
	again.Params.NumberOfPlates = 0
	require.NoError(t, again.Load())
	assert.Equal(t, s.Params, again.Params)
	assert.Equal(t, s.IO, again.IO)
	assert.Equal(t, s.Sensor, again.Sensor)
}

func TestSaveLoadByteIdentical(t *testing.T) {
	mem := NewMemStorage(imageSize)
	s := NewStore(mem)
	s.Params.MaxHeaterPower = 200
	s.Params.UsePWM = true
	s.Sensor.AddressHive[3] = 0
	require.NoError(t, s.Save())
	first := append([]byte(nil), mem.Data...)

	loaded := NewStore(mem)
	require.NoError(t, loaded.Load())
	require.NoError(t, loaded.Save())

	assert.Equal(t, first, mem.Data)
	assert.Equal(t, uint8(200), loaded.Params.MaxHeaterPower)
	assert.True(t, loaded.Params.UsePWM)
	assert.Equal(t, []SensorAddress{0xc00416a4cf26ff28, 0x1f0115a86b01ff28, 0x4d0416a4d157ff28}, loaded.Sensor.HiveSensors())
}

func TestSingleBitFlipIsDetected(t *testing.T) {
	base := NewMemStorage(imageSize)
	require.NoError(t, NewStore(base).Save())

	blocks := []struct {
		name string
		addr int64
		size int
	}{
		{"io", AddrIO, blockSize(&IO{})},
		{"params", AddrParams, blockSize(&Params{})},
		{"sensor", AddrSensor, blockSize(&Sensor{})},
	}
	for _, b := range blocks {
		for off := 0; off < b.size; off++ {
			if b.name == "params" && off >= 4 && off < 8 {
				continue // token bytes: covered by TestCorruptTokenResets
			}
			for bit := 0; bit < 8; bit++ {
				mem := &MemStorage{Data: append([]byte(nil), base.Data...)}
				mem.Data[b.addr+int64(off)] ^= 1 << bit
				err := NewStore(mem).Load()
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("%s byte %d bit %d: got %v, want ErrIntegrity", b.name, off, bit, err)
				}
				assert.Contains(t, err.Error(), b.name)
			}
		}
	}
}

func TestIntegrityFailureKeepsPreviousValues(t *testing.T) {
	mem := NewMemStorage(imageSize)
	require.NoError(t, NewStore(mem).Save())
	mem.Data[AddrSensor+10] ^= 0xff

	s := NewStore(mem)
	s.Params.MaxHeaterPower = 99
	err := s.Load()
	require.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, uint8(99), s.Params.MaxHeaterPower, "failed load must not replace in-memory blocks")
}

func TestCorruptTokenResets(t *testing.T) {
	mem := NewMemStorage(imageSize)
	s := NewStore(mem)
	s.Params.MaxHeaterPower = 42
	require.NoError(t, s.Save())
	mem.Data[AddrParams+4] ^= 0x01

	loaded := NewStore(mem)
	require.NoError(t, loaded.Load())
	assert.Equal(t, DefaultParams().MaxHeaterPower, loaded.Params.MaxHeaterPower)
}

func TestPlateCountClamped(t *testing.T) {
	mem := NewMemStorage(imageSize)
	s := NewStore(mem)
	s.Params.NumberOfPlates = 9
	require.NoError(t, s.Save())

	loaded := NewStore(mem)
	require.NoError(t, loaded.Load())
	assert.Equal(t, uint8(MaxPlates), loaded.Params.NumberOfPlates)
}

func TestThresholdOrderingValidated(t *testing.T) {
	mem := NewMemStorage(imageSize)
	s := NewStore(mem)
	s.Params.HiveMaxTemp = 460
	s.Params.HiveOverTemp = 460
	require.NoError(t, s.Save())

	err := NewStore(mem).Load()
	assert.ErrorIs(t, err, ErrThresholds)
}

func TestResetStampsChecksums(t *testing.T) {
	s := NewStore(NewMemStorage(imageSize))
	s.Params.MaxHeaterPower = 1
	s.Reset()
	assert.Equal(t, DefaultParams().MaxHeaterPower, s.Params.MaxHeaterPower)
	raw, err := encode(&s.Params)
	require.NoError(t, err)
	assert.Equal(t, s.Params.CRC, byteOrder.Uint32(raw))
	assert.NotZero(t, s.IO.CRC)
	assert.NotZero(t, s.Sensor.CRC)
}

func TestImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")
	f, err := OpenImage(path)
	require.NoError(t, err)

	s := NewStore(f)
	require.NoError(t, s.Load())
	s.Params.MinFanSpeed = 33
	require.NoError(t, s.Save())
	require.NoError(t, f.Close())

	f, err = OpenImage(path)
	require.NoError(t, err)
	defer f.Close()
	loaded := NewStore(f)
	require.NoError(t, loaded.Load())
	assert.Equal(t, uint8(33), loaded.Params.MinFanSpeed)
}

func TestParamsSet(t *testing.T) {
	p := DefaultParams()

	require.NoError(t, p.Set("maxHeaterPower", "200"))
	assert.Equal(t, uint8(200), p.MaxHeaterPower)

	require.NoError(t, p.Set("usePWM", "true"))
	assert.True(t, p.UsePWM)

	require.NoError(t, p.Set("plateKp", "2.5"))
	assert.InDelta(t, 2.5, p.PlateKp, 1e-6)

	got, err := p.Get("hiveOverTemp")
	require.NoError(t, err)
	assert.Equal(t, "460", got)

	assert.ErrorIs(t, p.Set("bogus", "1"), ErrUnknownField)
	assert.Error(t, p.Set("maxHeaterPower", "300"))
	assert.Error(t, p.Set("plates", "5"))
	assert.Error(t, p.Set("plateKi", "-1"))
	assert.ErrorIs(t, p.Set("hiveMaxTemp", "470"), ErrThresholds)
	assert.Equal(t, int16(440), p.HiveMaxTemp, "rejected change must not apply")
	assert.Contains(t, ParamNames(), "maxHeaters")
}
