package params

// Calibration value limits. A record carrying any value outside these
// ranges is rejected regardless of its CRC.
const (
	HallOffsetMin = -1000.0
	HallOffsetMax = 1000.0

	HallGainMin = 0.5
	HallGainMax = 2.0

	ADCGainMin = 0.8
	ADCGainMax = 1.2

	ADCOffsetMin = -500.0
	ADCOffsetMax = 500.0

	ThresholdMin = 0.0
	ThresholdMax = 10000.0
)
