package extract

import (
	"cdr-graph/backend/internal/graph"
	"cdr-graph/backend/internal/schema"
)

// Extraction is the graph fragment derived from one row. Nodes are unique
// within the row; edges keep emission order.
type Extraction struct {
	Nodes []graph.NodeRef
	Edges []graph.EdgeDescriptor
}

// Extract dispatches on the record's concrete type. Absent fields shrink the
// output; nothing here fails.
func Extract(r Record) Extraction {
	b := newBuilder()
	switch rec := r.(type) {
	case CDRRecord:
		b.call(rec.CallFields)
		b.cellSite(rec.FirstCell, rec.FirstCellAddress, rec.Latitude, rec.Longitude)
	case TDRecord:
		b.call(rec.CallFields)
		// Coordinates stand alone for TD rows: no Location node, no tower edges.
		if id := coordinatesID(rec.Latitude, rec.Longitude); id != "" {
			b.node(graph.LabelCoordinates, id)
		}
	case IPDRRecord:
		b.session(rec)
	}
	return b.extraction()
}

// ExtractRow parses and extracts in one step.
func ExtractRow(t schema.RecordType, row schema.NormalizedRow) (Extraction, error) {
	rec, err := Parse(t, row)
	if err != nil {
		return Extraction{}, err
	}
	return Extract(rec), nil
}

func coordinatesID(latitude, longitude string) string {
	if latitude == "" || longitude == "" {
		return ""
	}
	return latitude + "," + longitude
}

type builder struct {
	nodes []graph.NodeRef
	seen  map[graph.NodeRef]struct{}
	edges []graph.EdgeDescriptor
}

func newBuilder() *builder {
	return &builder{seen: make(map[graph.NodeRef]struct{})}
}

func (b *builder) node(label, id string) {
	if id == "" {
		return
	}
	ref := graph.NodeRef{Label: label, ID: id}
	if _, ok := b.seen[ref]; ok {
		return
	}
	b.seen[ref] = struct{}{}
	b.nodes = append(b.nodes, ref)
}

func (b *builder) edge(fromLabel, fromID, relType, toLabel, toID string, props map[string]string) {
	if fromID == "" || toID == "" {
		return
	}
	if props == nil {
		props = map[string]string{}
	}
	b.edges = append(b.edges, graph.EdgeDescriptor{
		FromLabel:  fromLabel,
		FromID:     fromID,
		RelType:    relType,
		ToLabel:    toLabel,
		ToID:       toID,
		Properties: props,
	})
}

func (b *builder) extraction() Extraction {
	return Extraction{Nodes: b.nodes, Edges: b.edges}
}

// call emits the nodes and edges common to CDR and TD rows.
func (b *builder) call(f CallFields) {
	b.node(graph.LabelParty, f.AParty)
	b.node(graph.LabelParty, f.BParty)
	b.node(graph.LabelIMEI, f.IMEI)
	b.node(graph.LabelIMSI, f.IMSI)
	b.node(graph.LabelTower, f.FirstCell)
	b.node(graph.LabelTower, f.LastCell)

	b.edge(graph.LabelParty, f.AParty, graph.RelCall, graph.LabelParty, f.BParty, map[string]string{
		"date":     f.Date,
		"time":     f.Time,
		"duration": f.Duration,
		"type":     f.CallType,
	})
	b.edge(graph.LabelParty, f.AParty, graph.RelUsedIMEI, graph.LabelIMEI, f.IMEI, nil)
	b.edge(graph.LabelParty, f.AParty, graph.RelUsedIMSI, graph.LabelIMSI, f.IMSI, nil)
	b.edge(graph.LabelParty, f.AParty, graph.RelStartedAt, graph.LabelTower, f.FirstCell, nil)
	b.edge(graph.LabelParty, f.AParty, graph.RelEndedAt, graph.LabelTower, f.LastCell, nil)
}

// cellSite attaches the first tower's address and coordinates (CDR only).
func (b *builder) cellSite(tower, address, latitude, longitude string) {
	coords := coordinatesID(latitude, longitude)
	b.node(graph.LabelLocation, address)
	b.node(graph.LabelCoordinates, coords)

	b.edge(graph.LabelTower, tower, graph.RelHasLocation, graph.LabelLocation, address, nil)
	b.edge(graph.LabelTower, tower, graph.RelLocatedAt, graph.LabelCoordinates, coords, nil)
}

func (b *builder) session(r IPDRRecord) {
	b.node(graph.LabelParty, r.SubscriberID)
	if r.UserID != r.SubscriberID {
		b.node(graph.LabelParty, r.UserID)
	}
	b.node(graph.LabelPrivateIP, r.PrivateIP)
	b.node(graph.LabelPublicIP, r.PublicIP)
	b.node(graph.LabelDestinationIP, r.DestinationIP)
	b.node(graph.LabelGateway, r.GatewayIP)
	b.node(graph.LabelAccessPoint, r.AccessPoint)
	b.node(graph.LabelTower, r.FirstCell)
	b.node(graph.LabelTower, r.LastCell)

	b.edge(graph.LabelParty, r.SubscriberID, graph.RelUsedPrivateIP, graph.LabelPrivateIP, r.PrivateIP, nil)
	b.edge(graph.LabelPrivateIP, r.PrivateIP, graph.RelNATTo, graph.LabelPublicIP, r.PublicIP, nil)
	b.edge(graph.LabelPublicIP, r.PublicIP, graph.RelConnectedTo, graph.LabelDestinationIP, r.DestinationIP, map[string]string{
		"src_port":  r.SourcePort,
		"dst_port":  r.DestinationPort,
		"duration":  r.SessionDuration,
		"data_up":   r.DataUp,
		"data_down": r.DataDown,
	})
	b.edge(graph.LabelParty, r.SubscriberID, graph.RelViaGateway, graph.LabelGateway, r.GatewayIP, nil)
	b.edge(graph.LabelParty, r.SubscriberID, graph.RelUsedAPN, graph.LabelAccessPoint, r.AccessPoint, nil)
	b.edge(graph.LabelParty, r.SubscriberID, graph.RelConnectedFrom, graph.LabelTower, r.FirstCell, nil)
	b.edge(graph.LabelParty, r.SubscriberID, graph.RelDisconnectedAt, graph.LabelTower, r.LastCell, nil)
}
