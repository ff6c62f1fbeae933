package config

// DefaultIO returns the factory pin assignment.
func DefaultIO() IO {
	return IO{
		Heartbeat:          13,
		TemperatureSensor:  4,
		HumiditySensor:     9,
		HumiditySensorType: 22,
		Vaporizer:          5,
		HumidifierFan:      6,
		HeaterRelay:        17,
		Beeper:             10,
		Heater:             [MaxPlates]uint8{11, 12, 2, 3},
		Fan:                [MaxPlates]uint8{7, 8, 44, 45},
		ButtonLeft:         11,
		ButtonRight:        12,
		ButtonUp:           2,
		ButtonDown:         3,
		ButtonSelect:       13,
		LCDRs:              22,
		LCDEnable:          23,
		LCDData:            [4]uint8{24, 25, 26, 27},
	}
}

// DefaultParams returns the factory operating limits.
func DefaultParams() Params {
	return Params{
		Token:                Token,
		Version:              1,
		NumberOfPlates:       4,
		MaxHeaterPower:       170,
		MinFanSpeed:          10,
		UsePWM:               false,
		MaxConcurrentHeaters: 2,
		HiveMaxTemp:          440,
		HiveOverTemp:         460,
		PlateOverTemp:        850,
		PlateKp:              4,
		PlateKi:              0.09,
		PlateKd:              50,
		HiveKp:               8,
		HiveKi:               0.2,
		HiveKd:               5,
	}
}

// DefaultSensor returns the probe addresses of the reference build.
func DefaultSensor() Sensor {
	return Sensor{
		AddressPlate: [MaxPlates]SensorAddress{
			0x3d0516a4f187ff28,
			0x9a0516a50124ff28,
			0xe10316a5188cff28,
			0xed0316a48290ff28,
		},
		AddressHive: [MaxPlates]SensorAddress{
			0xc00416a4cf26ff28,
			0x1f0115a86b01ff28,
			0x4d0416a4d157ff28,
			0xf70315a86f2fff28,
		},
	}
}
