package variables

import (
	"fmt"
	"strings"
)

// TxPoint is one condition in the 2.0.1 TxStartPoint/TxStopPoint set.
type TxPoint string

const (
	TxPointParkingBayOccupancy TxPoint = "ParkingBayOccupancy"
	TxPointEVConnected         TxPoint = "EVConnected"
	TxPointAuthorized          TxPoint = "Authorized"
	TxPointDataSigned          TxPoint = "DataSigned"
	TxPointPowerPathClosed     TxPoint = "PowerPathClosed"
	TxPointEnergyTransfer      TxPoint = "EnergyTransfer"
)

var validTxPoints = map[TxPoint]struct{}{
	TxPointParkingBayOccupancy: {},
	TxPointEVConnected:         {},
	TxPointAuthorized:          {},
	TxPointDataSigned:          {},
	TxPointPowerPathClosed:     {},
	TxPointEnergyTransfer:      {},
}

// ParseTxPointList parses a comma-separated TxStartPoint/TxStopPoint
// value, rejecting on the first unrecognized token. Per design note: the
// caller is expected to retain the original string for round-trip
// serialization rather than reconstructing it from the parsed set, since
// whitespace/casing of the wire value must survive unchanged.
func ParseTxPointList(value string) ([]TxPoint, error) {
	tokens := strings.Split(value, ",")
	out := make([]TxPoint, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		p := TxPoint(tok)
		if _, ok := validTxPoints[p]; !ok {
			return nil, fmt.Errorf("variables: unknown TxStartPoint/TxStopPoint token %q", tok)
		}
		out = append(out, p)
	}
	return out, nil
}

// ContainsTxPoint reports whether list contains p.
func ContainsTxPoint(list []TxPoint, p TxPoint) bool {
	for _, x := range list {
		if x == p {
			return true
		}
	}
	return false
}

// ParseMeasurandList parses a comma-separated MeterValuesSampledData /
// StopTxnSampledData / MeterValuesAlignedData value. Unlike TxPoint, the
// measurand vocabulary is open-ended in the wire spec (vendor-specific
// measurands are legal), so this only rejects empty tokens and trims
// whitespace -- the validity check that matters operationally is that the
// *whole* ChangeConfiguration update is atomic (ConfigurationStatus
// Rejected) if any single token fails this minimal syntax check.
func ParseMeasurandList(value string) ([]string, error) {
	tokens := strings.Split(value, ",")
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("variables: empty measurand token in %q", value)
		}
		out = append(out, tok)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("variables: empty measurand list")
	}
	return out, nil
}
