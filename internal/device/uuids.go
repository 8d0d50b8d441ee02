package device

// Device Information service and its characteristics.
var (
	DeviceInformationService = ShortUUID(0x180A)

	ManufacturerNameCharacteristic = ShortUUID(0x2A29)
	ModelNumberCharacteristic      = ShortUUID(0x2A24)
	SerialNumberCharacteristic     = ShortUUID(0x2A25)
	HardwareRevisionCharacteristic = ShortUUID(0x2A27)
	FirmwareRevisionCharacteristic = ShortUUID(0x2A26)
	SoftwareRevisionCharacteristic = ShortUUID(0x2A28)
)

// Heart Rate service
var (
	HeartRateService = ShortUUID(0x180D)

	HeartRateMeasurementCharacteristic  = ShortUUID(0x2A37)
	HeartRateControlPointCharacteristic = ShortUUID(0x2A39)
	BodySensorLocationCharacteristic    = ShortUUID(0x2A38)
)

// Battery service
var (
	BatteryService             = ShortUUID(0x180F)
	BatteryLevelCharacteristic = ShortUUID(0x2A19)
)

// ClientCharacteristicConfigDescriptor is the CCCD used to enable notifications and indications.
var ClientCharacteristicConfigDescriptor = ShortUUID(0x2902)
