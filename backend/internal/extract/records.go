// Package extract turns normalized telecom rows into graph node references
// and relationship descriptors.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"cdr-graph/backend/internal/schema"
)

// ErrUnsupportedRecordType is returned by Parse for types without an extractor.
var ErrUnsupportedRecordType = errors.New("unsupported record type")

// IPDR subscriber columns. The source headers contain slashes, which survive
// normalization.
const (
	ColSubscriberID = "LANDLINE/MSISDN/MDN/LEASED_CIRCUIT_ID_FOR_INTERNET_ACCESS"
	ColAuthUserID   = "USER_ID_FOR_INTERNET_ACCESS_BASED_ON_AUTHENTICATION"
)

// Record is one parsed row. It is implemented only by CDRRecord, TDRecord and
// IPDRRecord.
type Record interface {
	Type() schema.RecordType
	sealed()
}

// CallFields are the columns shared by CDR and TD rows. An empty field is
// absent.
type CallFields struct {
	AParty           string
	BParty           string
	IMEI             string
	IMSI             string
	FirstCell        string
	LastCell         string
	FirstCellAddress string
	Latitude         string
	Longitude        string
	Date             string
	Time             string
	Duration         string
	CallType         string
}

// CDRRecord is a call detail record row.
type CDRRecord struct {
	CallFields
}

// TDRecord is a tower/roaming call row.
type TDRecord struct {
	CallFields
	Roaming string
}

// IPDRRecord is an internet session row.
type IPDRRecord struct {
	SubscriberID    string
	UserID          string
	PrivateIP       string
	PublicIP        string
	DestinationIP   string
	SourcePort      string
	DestinationPort string
	GatewayIP       string
	AccessPoint     string
	FirstCell       string
	LastCell        string
	SessionDuration string
	DataUp          string
	DataDown        string
}

func (CDRRecord) Type() schema.RecordType  { return schema.CDR }
func (TDRecord) Type() schema.RecordType   { return schema.TD }
func (IPDRRecord) Type() schema.RecordType { return schema.IPDR }

func (CDRRecord) sealed()  {}
func (TDRecord) sealed()   {}
func (IPDRRecord) sealed() {}

// Parse builds the typed record for a row. Missing columns and blank cells
// become empty fields; values are trimmed.
func Parse(t schema.RecordType, row schema.NormalizedRow) (Record, error) {
	switch t {
	case schema.CDR:
		return CDRRecord{CallFields: parseCallFields(row)}, nil
	case schema.TD:
		return TDRecord{CallFields: parseCallFields(row), Roaming: field(row, schema.ColRoamingA)}, nil
	case schema.IPDR:
		return parseIPDR(row), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRecordType, t)
	}
}

func parseCallFields(row schema.NormalizedRow) CallFields {
	return CallFields{
		AParty:           field(row, schema.ColAParty),
		BParty:           field(row, schema.ColBParty),
		IMEI:             field(row, schema.ColIMEIA),
		IMSI:             field(row, schema.ColIMSIA),
		FirstCell:        field(row, "FIRST_CELL_ID_A"),
		LastCell:         field(row, "LAST_CELL_ID_A"),
		FirstCellAddress: field(row, "FIRST_CELL_ID_A_ADDRESS"),
		Latitude:         field(row, "LATITUDE"),
		Longitude:        field(row, "LONGITUDE"),
		Date:             field(row, "DATE"),
		Time:             field(row, "TIME"),
		Duration:         field(row, "DURATION"),
		CallType:         field(row, schema.ColCallType),
	}
}

func parseIPDR(row schema.NormalizedRow) IPDRRecord {
	return IPDRRecord{
		SubscriberID:    field(row, ColSubscriberID),
		UserID:          field(row, ColAuthUserID),
		PrivateIP:       field(row, schema.ColSourceIP),
		PublicIP:        field(row, schema.ColNATIP),
		DestinationIP:   field(row, schema.ColDestIP),
		SourcePort:      field(row, "SOURCE_PORT"),
		DestinationPort: field(row, "DESTINATION_PORT"),
		GatewayIP:       field(row, "PGW_IP_ADDRESS"),
		AccessPoint:     field(row, "ACCESS_POINT_NAME"),
		FirstCell:       field(row, "FIRST_CELL_ID"),
		LastCell:        field(row, "LAST_CELL_ID"),
		SessionDuration: field(row, schema.ColSessionDur),
		DataUp:          field(row, "DATA_VOLUME_UP_LINK"),
		DataDown:        field(row, "DATA_VOLUME_DOWN_LINK"),
	}
}

func field(row schema.NormalizedRow, column string) string {
	return strings.TrimSpace(row.Get(column))
}
