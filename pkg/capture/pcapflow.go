// Package capture pre-aggregates packet captures into per-flow traffic
// records. It reads pcap files offline and groups packets by 5-tuple; the
// detection pipeline only ever sees the aggregated flow statistics.
package capture

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/rdally/netflow-sentinel/pkg/flow"
)

// flowKey identifies one unidirectional flow.
type flowKey struct {
	srcIP    string
	dstIP    string
	srcPort  uint16
	dstPort  uint16
	protocol string
}

// flowStats accumulates per-flow counters.
type flowStats struct {
	bytes   float64
	packets float64
	first   time.Time
	last    time.Time
}

// Aggregator folds packets into flow records.
type Aggregator struct {
	flows map[flowKey]*flowStats
	order []flowKey
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{flows: make(map[flowKey]*flowStats)}
}

// Add folds one packet observation into its flow.
func (a *Aggregator) Add(srcIP, dstIP string, srcPort, dstPort uint16, protocol string, size int, ts time.Time) {
	key := flowKey{srcIP: srcIP, dstIP: dstIP, srcPort: srcPort, dstPort: dstPort, protocol: protocol}
	stats, ok := a.flows[key]
	if !ok {
		stats = &flowStats{first: ts, last: ts}
		a.flows[key] = stats
		a.order = append(a.order, key)
	}
	stats.bytes += float64(size)
	stats.packets++
	if ts.Before(stats.first) {
		stats.first = ts
	}
	if ts.After(stats.last) {
		stats.last = ts
	}
}

// Len reports the number of distinct flows seen so far.
func (a *Aggregator) Len() int { return len(a.flows) }

// Table materializes the aggregated flows as a traffic table with the
// standard feature and context columns, ordered by first-seen time.
func (a *Aggregator) Table() (*flow.Table, error) {
	keys := make([]flowKey, len(a.order))
	copy(keys, a.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return a.flows[keys[i]].first.Before(a.flows[keys[j]].first)
	})

	n := len(keys)
	bytes := make([]float64, n)
	packets := make([]float64, n)
	duration := make([]float64, n)
	srcPort := make([]float64, n)
	dstPort := make([]float64, n)
	protocol := make([]string, n)
	srcIP := make([]string, n)
	dstIP := make([]string, n)
	timestamp := make([]string, n)

	for i, key := range keys {
		stats := a.flows[key]
		bytes[i] = stats.bytes
		packets[i] = stats.packets
		duration[i] = stats.last.Sub(stats.first).Seconds()
		srcPort[i] = float64(key.srcPort)
		dstPort[i] = float64(key.dstPort)
		protocol[i] = key.protocol
		srcIP[i] = key.srcIP
		dstIP[i] = key.dstIP
		timestamp[i] = stats.first.Format(time.RFC3339)
	}

	t := flow.NewTable(n)
	for _, col := range []struct {
		name   string
		values []float64
	}{
		{flow.ColBytes, bytes},
		{flow.ColPackets, packets},
		{flow.ColDuration, duration},
		{flow.ColSourcePort, srcPort},
		{flow.ColDestPort, dstPort},
	} {
		if err := t.AddNumeric(col.name, col.values); err != nil {
			return nil, err
		}
	}
	for _, col := range []struct {
		name   string
		values []string
	}{
		{flow.ColProtocol, protocol},
		{"source_ip", srcIP},
		{"destination_ip", dstIP},
		{flow.ColTimestamp, timestamp},
	} {
		if err := t.AddText(col.name, col.values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadPCAPFile aggregates a pcap file into a flow table. Packets without an
// IPv4/IPv6 layer are skipped; TCP and UDP carry their ports, everything
// else aggregates per host pair under the IP protocol name.
func ReadPCAPFile(path string) (*flow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pcap %s: %w", path, err)
	}
	defer f.Close()
	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening pcap %s: %w", path, err)
	}

	agg := NewAggregator()
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	for packet := range source.Packets() {
		addPacket(agg, packet)
	}
	return agg.Table()
}

func addPacket(agg *Aggregator, packet gopacket.Packet) {
	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		return
	}
	netFlow := netLayer.NetworkFlow()
	srcIP, dstIP := netFlow.Src().String(), netFlow.Dst().String()

	var srcPort, dstPort uint16
	protocol := "IP"
	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		srcPort, dstPort = uint16(tcp.SrcPort), uint16(tcp.DstPort)
		protocol = "TCP"
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		srcPort, dstPort = uint16(udp.SrcPort), uint16(udp.DstPort)
		protocol = "UDP"
	}

	ts := time.Now()
	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		ts = md.Timestamp
	}
	agg.Add(srcIP, dstIP, srcPort, dstPort, protocol, len(packet.Data()), ts)
}
