// Package radiotap extracts WiFi survey fingerprints from 802.11 capture
// files. It reads radiotap-framed beacon frames from a pcap file, collects
// per-BSSID signal observations and aggregates them into the readings the
// fingerprint estimators consume.
package radiotap

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/position.report/internal/fingerprint"
	"github.com/banshee-data/position.report/internal/units"
)

// A BeaconObservation is one beacon frame's signal measurement.
type BeaconObservation struct {
	// BSSID is the transmitting access point, lowercased colon-hex.
	BSSID string
	// SSID is the advertised network name, empty when hidden.
	SSID string
	// SignalDbm is the radiotap antenna signal.
	SignalDbm float64
	// FrequencyHz is the radiotap channel frequency, 0 when the capture
	// carries no channel field.
	FrequencyHz float64
	// CapturedAt is the pcap capture timestamp.
	CapturedAt time.Time
}

// SourceStats aggregates the observations of one BSSID.
type SourceStats struct {
	BSSID       string
	SSID        string
	Count       int
	MeanDbm     float64
	StdDevDbm   float64 // sample standard deviation, 0 below two samples
	FrequencyHz float64
}

// ReadBeaconsFile reads beacon observations from a pcap file on disk.
func ReadBeaconsFile(path string) ([]BeaconObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer f.Close()
	obs, err := ReadBeacons(f)
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", path, err)
	}
	return obs, nil
}

// ReadBeacons reads every 802.11 beacon frame from a radiotap pcap stream.
// Frames that are not beacons, or whose radiotap header carries no antenna
// signal, are skipped.
func ReadBeacons(r io.Reader) ([]BeaconObservation, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	if lt := pr.LinkType(); lt != layers.LinkTypeIEEE80211Radio {
		return nil, fmt.Errorf("capture link type is %v, want radiotap (IEEE80211Radio)", lt)
	}

	var observations []BeaconObservation
	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read packet: %w", err)
		}

		packet := gopacket.NewPacket(data, layers.LayerTypeRadioTap, gopacket.Default)
		obs, ok := decodeBeacon(packet)
		if !ok {
			continue
		}
		obs.CapturedAt = ci.Timestamp
		observations = append(observations, obs)
	}
	return observations, nil
}

// decodeBeacon extracts one observation from a decoded packet. ok is false
// for anything that is not a beacon with a signal measurement.
func decodeBeacon(packet gopacket.Packet) (BeaconObservation, bool) {
	rtLayer := packet.Layer(layers.LayerTypeRadioTap)
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if rtLayer == nil || dot11Layer == nil {
		return BeaconObservation{}, false
	}
	rt := rtLayer.(*layers.RadioTap)
	dot11 := dot11Layer.(*layers.Dot11)

	if dot11.Type != layers.Dot11TypeMgmtBeacon {
		return BeaconObservation{}, false
	}
	if !rt.Present.DBMAntennaSignal() {
		return BeaconObservation{}, false
	}

	obs := BeaconObservation{
		BSSID:     dot11.Address3.String(),
		SignalDbm: float64(rt.DBMAntennaSignal),
	}
	if rt.Present.Channel() {
		obs.FrequencyHz = float64(rt.ChannelFrequency) * units.Megahertz
	}

	// The SSID rides in the first information element with the SSID id.
	for _, layer := range packet.Layers() {
		elem, ok := layer.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		if elem.ID == layers.Dot11InformationElementIDSSID {
			obs.SSID = string(elem.Info)
			break
		}
	}
	return obs, true
}

// Aggregate folds observations into per-BSSID statistics, sorted by BSSID.
// The SSID and frequency are taken from the latest observation carrying
// one.
func Aggregate(observations []BeaconObservation) []SourceStats {
	signals := make(map[string][]float64)
	meta := make(map[string]*SourceStats)
	for _, obs := range observations {
		signals[obs.BSSID] = append(signals[obs.BSSID], obs.SignalDbm)
		s, ok := meta[obs.BSSID]
		if !ok {
			s = &SourceStats{BSSID: obs.BSSID}
			meta[obs.BSSID] = s
		}
		if obs.SSID != "" {
			s.SSID = obs.SSID
		}
		if obs.FrequencyHz > 0 {
			s.FrequencyHz = obs.FrequencyHz
		}
	}

	stats := make([]SourceStats, 0, len(meta))
	for bssid, s := range meta {
		x := signals[bssid]
		s.Count = len(x)
		s.MeanDbm = stat.Mean(x, nil)
		if len(x) > 1 {
			s.StdDevDbm = stat.StdDev(x, nil)
		}
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].BSSID < stats[j].BSSID })
	return stats
}

// Fingerprint materializes aggregated statistics as a query fingerprint.
// BSSIDs observed fewer than minSamples times are dropped; a minSamples
// below 1 keeps everything.
func Fingerprint(stats []SourceStats, minSamples int) (*fingerprint.Fingerprint, error) {
	if minSamples < 1 {
		minSamples = 1
	}
	var readings []fingerprint.Reading
	for _, s := range stats {
		if s.Count < minSamples {
			continue
		}
		var (
			r   fingerprint.Reading
			err error
		)
		if s.StdDevDbm > 0 {
			r, err = fingerprint.NewReadingWithStdDev(s.BSSID, s.MeanDbm, s.StdDevDbm)
		} else {
			r, err = fingerprint.NewReading(s.BSSID, s.MeanDbm)
		}
		if err != nil {
			return nil, fmt.Errorf("bssid %s: %w", s.BSSID, err)
		}
		readings = append(readings, r)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("no bssid observed at least %d times", minSamples)
	}
	return fingerprint.New(readings...)
}
