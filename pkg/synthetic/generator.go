// Package synthetic produces labeled synthetic network traffic for demos
// and for validating the scorer and recommendation engine against known
// ground truth. The mixture is roughly 85% normal traffic and 15% split
// evenly across three anomaly archetypes: volumetric flood, data
// exfiltration and reconnaissance scan.
package synthetic

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rdally/netflow-sentinel/pkg/flow"
)

// ColTrafficType is the ground-truth label column added to generated
// tables. It passes through the pipeline like any other context column.
const ColTrafficType = "traffic_type"

// Ground-truth traffic type values.
const (
	TrafficNormal       = "normal"
	TrafficFlood        = "flood"
	TrafficExfiltration = "exfiltration"
	TrafficScan         = "scan"
)

const normalFraction = 0.85

// Options controls generation. The seed is explicit so test fixtures are
// reproducible; production callers may seed from the wall clock.
type Options struct {
	// Start is the timestamp of the first record. Zero means now.
	Start time.Time
	// DurationHours sets the span covered at one record per minute.
	// Zero means 24.
	DurationHours int
	// Seed drives every random draw.
	Seed int64
}

// Generate produces a traffic table of DurationHours*60 records: a block of
// normal flows followed by flood, exfiltration and scan blocks, each
// archetype drawn from its own statistical shape for bytes, packets,
// duration and port selection.
func Generate(opts Options) (*flow.Table, error) {
	hours := opts.DurationHours
	if hours <= 0 {
		hours = 24
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}

	total := hours * 60
	nNormal := int(float64(total) * normalFraction)
	nAnomalous := total - nNormal

	// Anomalies split evenly across the three archetypes, remainder going
	// to the earlier ones.
	sizes := [3]int{nAnomalous / 3, nAnomalous / 3, nAnomalous / 3}
	for i := 0; i < nAnomalous%3; i++ {
		sizes[i]++
	}

	src := rand.NewSource(uint64(opts.Seed))
	rng := rand.New(src)
	uniform := func(min, max float64) float64 { return min + rng.Float64()*(max-min) }

	// Base patterns are themselves randomized so different seeds yield
	// distinct but structurally similar datasets.
	trafficMean := uniform(400_000, 600_000)
	trafficStd := uniform(100_000, 200_000)
	packetMean := uniform(800, 1200)
	packetStd := uniform(200, 400)
	anomalyMult := uniform(3, 5)

	normal := func(mu, sigma float64) distuv.Normal {
		return distuv.Normal{Mu: mu, Sigma: sigma, Src: src}
	}
	gammaDur := distuv.Gamma{Alpha: 3, Beta: 0.1, Src: src} // mean 30s
	beta := func(a, b float64) distuv.Beta {
		return distuv.Beta{Alpha: a, Beta: b, Src: src}
	}

	bytes := make([]float64, 0, total)
	packets := make([]float64, 0, total)
	duration := make([]float64, 0, total)
	srcPort := make([]float64, 0, total)
	dstPort := make([]float64, 0, total)
	retrans := make([]float64, 0, total)
	kind := make([]string, 0, total)

	// Normal traffic: weighted common service ports.
	normalPorts := []int{80, 443, 22, 21, 3306, 5432, 8080, 8443, 25, 53}
	normalPortDist := distuv.NewCategorical(
		[]float64{0.30, 0.25, 0.10, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.05}, src)
	bytesNormal := normal(trafficMean, trafficStd)
	packetsNormal := normal(packetMean, packetStd)
	retransNormal := beta(2, 50)
	for i := 0; i < nNormal; i++ {
		bytes = append(bytes, bytesNormal.Rand())
		packets = append(packets, packetsNormal.Rand())
		duration = append(duration, gammaDur.Rand())
		srcPort = append(srcPort, float64(1024+rng.Intn(65535-1024)))
		dstPort = append(dstPort, float64(normalPorts[int(normalPortDist.Rand())]))
		retrans = append(retrans, retransNormal.Rand())
		kind = append(kind, TrafficNormal)
	}

	// Volumetric flood: multiplied volume, near-zero duration, common
	// ports, high retransmission.
	bytesFlood := normal(trafficMean*anomalyMult, trafficStd*2)
	packetsFlood := normal(packetMean*anomalyMult, packetStd*2)
	retransFlood := beta(5, 2)
	floodPorts := []int{80, 443}
	for i := 0; i < sizes[0]; i++ {
		bytes = append(bytes, bytesFlood.Rand())
		packets = append(packets, packetsFlood.Rand())
		duration = append(duration, uniform(0.1, 1))
		srcPort = append(srcPort, float64(1024+rng.Intn(65535-1024)))
		dstPort = append(dstPort, float64(floodPorts[rng.Intn(len(floodPorts))]))
		retrans = append(retrans, retransFlood.Rand())
		kind = append(kind, TrafficFlood)
	}

	// Data exfiltration: tiny payloads over long sessions to sensitive
	// service ports, low retransmission.
	bytesExfil := normal(100, 50)
	packetsExfil := normal(50, 20)
	retransExfil := beta(1, 50)
	exfilPorts := []int{21, 22, 3306}
	for i := 0; i < sizes[1]; i++ {
		bytes = append(bytes, bytesExfil.Rand())
		packets = append(packets, packetsExfil.Rand())
		duration = append(duration, uniform(300, 600))
		srcPort = append(srcPort, float64(1024+rng.Intn(65535-1024)))
		dstPort = append(dstPort, float64(exfilPorts[rng.Intn(len(exfilPorts))]))
		retrans = append(retrans, retransExfil.Rand())
		kind = append(kind, TrafficExfiltration)
	}

	// Reconnaissance scan: low bytes, elevated packets, very short
	// connections, random destination ports.
	bytesScan := normal(trafficMean*0.1, trafficStd*0.1)
	packetsScan := normal(packetMean*2, packetStd)
	retransScan := beta(2, 20)
	for i := 0; i < sizes[2]; i++ {
		bytes = append(bytes, bytesScan.Rand())
		packets = append(packets, packetsScan.Rand())
		duration = append(duration, uniform(0.1, 0.5))
		srcPort = append(srcPort, float64(1024+rng.Intn(65535-1024)))
		dstPort = append(dstPort, float64(1+rng.Intn(65534)))
		retrans = append(retrans, retransScan.Rand())
		kind = append(kind, TrafficScan)
	}

	// Protocols: weighted mix, overridden where the destination port pins
	// the protocol.
	protoNames := []string{"TCP", "UDP", "HTTP", "HTTPS", "SSH", "FTP"}
	protoDist := distuv.NewCategorical([]float64{0.30, 0.20, 0.20, 0.15, 0.10, 0.05}, src)
	protocol := make([]string, total)
	for i := 0; i < total; i++ {
		protocol[i] = protoNames[int(protoDist.Rand())]
		switch int(dstPort[i]) {
		case 80:
			protocol[i] = pick(rng, "HTTP", "TCP")
		case 443:
			protocol[i] = pick(rng, "HTTPS", "TCP")
		case 22:
			protocol[i] = "SSH"
		case 21:
			protocol[i] = "FTP"
		}
	}

	// One record per minute. Business hours carry more volume, the small
	// hours less.
	timestamp := make([]string, total)
	for i := 0; i < total; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		timestamp[i] = ts.Format(time.RFC3339)
		switch hour := ts.Hour(); {
		case hour >= 1 && hour <= 5:
			bytes[i] *= uniform(0.5, 0.8)
		case hour >= 9 && hour <= 17:
			bytes[i] *= uniform(1.2, 1.5)
		}
	}

	// Derived features with multiplicative noise.
	noise := normal(1, 0.1)
	bytesPerPacket := make([]float64, total)
	packetsPerSecond := make([]float64, total)
	for i := 0; i < total; i++ {
		bytes[i] = math.Abs(bytes[i])
		packets[i] = math.Abs(packets[i])
		duration[i] = math.Abs(duration[i])
		retrans[i] = math.Abs(retrans[i])
		if packets[i] > 0 {
			bytesPerPacket[i] = bytes[i] / packets[i] * noise.Rand()
		}
		if duration[i] > 0 {
			packetsPerSecond[i] = packets[i] / duration[i] * noise.Rand()
		}
	}

	table := flow.NewTable(total)
	for _, col := range []struct {
		name   string
		values []float64
	}{
		{flow.ColBytes, bytes},
		{flow.ColPackets, packets},
		{flow.ColDuration, duration},
		{flow.ColSourcePort, srcPort},
		{flow.ColDestPort, dstPort},
		{flow.ColRetransRate, retrans},
	} {
		if err := table.AddNumeric(col.name, col.values); err != nil {
			return nil, fmt.Errorf("building %s: %w", col.name, err)
		}
	}
	if err := table.AddText(flow.ColProtocol, protocol); err != nil {
		return nil, err
	}
	if err := table.AddText(flow.ColTimestamp, timestamp); err != nil {
		return nil, err
	}
	if err := table.AddNumeric("bytes_per_packet", bytesPerPacket); err != nil {
		return nil, err
	}
	if err := table.AddNumeric("packets_per_second", packetsPerSecond); err != nil {
		return nil, err
	}
	if err := table.AddText(ColTrafficType, kind); err != nil {
		return nil, err
	}
	return table, nil
}

func pick(rng *rand.Rand, a, b string) string {
	if rng.Intn(2) == 0 {
		return a
	}
	return b
}
