package variables

// Declare1_6 registers the OCPP 1.6 configuration knobs the transaction
// engine, journal, and metering recognize (spec §4.1, §4.5, §4.6).
func Declare1_6(s *Store) {
	for _, def := range []Definition{
		{Key: "ConnectionTimeOut", Type: TypeInt, FactoryDefault: "60", Mutable: true, Persistent: true},
		{Key: "StopTransactionOnEVSideDisconnect", Type: TypeBool, FactoryDefault: "true", Mutable: true, Persistent: true},
		{Key: "StopTransactionOnInvalidId", Type: TypeBool, FactoryDefault: "true", Mutable: true, Persistent: true},
		{Key: "LocalPreAuthorize", Type: TypeBool, FactoryDefault: "false", Mutable: true, Persistent: true},
		{Key: "LocalAuthorizeOffline", Type: TypeBool, FactoryDefault: "true", Mutable: true, Persistent: true},
		{Key: "AllowOfflineTxForUnknownId", Type: TypeBool, FactoryDefault: "false", Mutable: true, Persistent: true},
		{Key: "AuthorizationTimeout", Type: TypeInt, FactoryDefault: "20", Mutable: true, Persistent: true},
		{Key: "SilentOfflineTransactions", Type: TypeBool, FactoryDefault: "false", Mutable: true, Persistent: true},
		{Key: "TxStartOnPowerPathClosed", Type: TypeBool, FactoryDefault: "false", Mutable: true, Persistent: true},
		{Key: "FreeVendActive", Type: TypeBool, FactoryDefault: "false", Mutable: true, Persistent: true},
		{Key: "FreeVendIdTag", Type: TypeString, FactoryDefault: "FREE", Mutable: true, Persistent: true},
		{Key: "TransactionMessageAttempts", Type: TypeInt, FactoryDefault: "3", Mutable: true, Persistent: true},
		{Key: "TransactionMessageRetryInterval", Type: TypeInt, FactoryDefault: "60", Mutable: true, Persistent: true},
		{Key: "PreBootTransactions", Type: TypeBool, FactoryDefault: "false", Mutable: true, Persistent: true},

		{Key: "MeterValuesSampledData", Type: TypeString, FactoryDefault: "Energy.Active.Import.Register", Mutable: true, Persistent: true, Validate: validMeasurandList},
		{Key: "StopTxnSampledData", Type: TypeString, FactoryDefault: "Energy.Active.Import.Register", Mutable: true, Persistent: true, Validate: validMeasurandList},
		{Key: "MeterValuesAlignedData", Type: TypeString, FactoryDefault: "Energy.Active.Import.Register", Mutable: true, Persistent: true, Validate: validMeasurandList},
		{Key: "MeterValueSampleInterval", Type: TypeInt, FactoryDefault: "60", Mutable: true, Persistent: true},
		{Key: "ClockAlignedDataInterval", Type: TypeInt, FactoryDefault: "900", Mutable: true, Persistent: true},

		{Key: "LocalAuthListEnabled", Type: TypeBool, FactoryDefault: "true", Mutable: true, Persistent: true},
		{Key: "LocalAuthListMaxLength", Type: TypeInt, FactoryDefault: "100", Mutable: false, Persistent: true},
		{Key: "SendLocalListMaxLength", Type: TypeInt, FactoryDefault: "20", Mutable: false, Persistent: true},

		{Key: "ReserveConnectorZeroSupported", Type: TypeBool, FactoryDefault: "false", Mutable: false, Persistent: true},
		{Key: "ChargeProfileMaxStackLevel", Type: TypeInt, FactoryDefault: "8", Mutable: false, Persistent: true},

		{Key: "SupportedFileTransferProtocols", Type: TypeString, FactoryDefault: "HTTP,HTTPS", Mutable: false, Persistent: true},
		{Key: "HeartbeatInterval", Type: TypeInt, FactoryDefault: "300", Mutable: true, Persistent: true},
		{Key: "NumberOfConnectors", Type: TypeInt, FactoryDefault: "1", Mutable: false, Persistent: true, Accessibility: AccessReadOnly},
	} {
		s.Declare(def)
	}
}

// Declare2_0_1 additionally registers the 2.0.1-only TxStartPoint/
// TxStopPoint and EVConnectionTimeOut knobs (spec §4.1).
func Declare2_0_1(s *Store) {
	Declare1_6(s)
	for _, def := range []Definition{
		{Key: "TxStartPoint", Type: TypeString, FactoryDefault: "PowerPathClosed", Mutable: true, Persistent: true, Validate: validTxPointList},
		{Key: "TxStopPoint", Type: TypeString, FactoryDefault: "PowerPathClosed", Mutable: true, Persistent: true, Validate: validTxPointList},
		{Key: "EVConnectionTimeOut", Type: TypeInt, FactoryDefault: "60", Mutable: true, Persistent: true},
		{Key: "TxUpdatedInterval", Type: TypeInt, FactoryDefault: "60", Mutable: true, Persistent: true},
		{Key: "TxEndedInterval", Type: TypeInt, FactoryDefault: "60", Mutable: true, Persistent: true},
	} {
		s.Declare(def)
	}
}

func validMeasurandList(value string) error {
	_, err := ParseMeasurandList(value)
	return err
}

func validTxPointList(value string) error {
	_, err := ParseTxPointList(value)
	return err
}
