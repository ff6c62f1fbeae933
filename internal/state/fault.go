package state

// Fault is a machine-readable code describing why the system entered Error.
type Fault string

// Error implements the error interface.
func (f Fault) Error() string { return string(f) }

const (
	FaultNone              Fault = "none"
	FaultOverTempPlate     Fault = "overtemp_plate"
	FaultOverTempZone      Fault = "overtemp_zone"
	FaultConfigIntegrity   Fault = "config_integrity"
	FaultInvalidTransition Fault = "invalid_transition"
)
