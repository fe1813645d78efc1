// Package rtcpfeed turns receiver feedback into uplink estimates.
package rtcpfeed

import (
	"fmt"
	"math"

	"uplinkpolicy/internal/core/domain"

	"github.com/pion/rtcp"
)

// Estimate is the uplink bandwidth a receiver reported for a sender's media.
type Estimate struct {
	UplinkKbps int
	SSRCs      []uint32
}

// UplinkFromRTCP returns the first REMB estimate in a compound RTCP packet.
// Packets without a REMB yield domain.ErrNoUplinkEstimate.
func UplinkFromRTCP(raw []byte) (Estimate, error) {
	packets, err := rtcp.Unmarshal(raw)
	if err != nil {
		return Estimate{}, fmt.Errorf("failed to parse rtcp: %w", err)
	}

	for _, packet := range packets {
		remb, ok := packet.(*rtcp.ReceiverEstimatedMaximumBitrate)
		if !ok {
			continue
		}
		return Estimate{
			UplinkKbps: bpsToKbps(remb.Bitrate),
			SSRCs:      remb.SSRCs,
		}, nil
	}
	return Estimate{}, domain.ErrNoUplinkEstimate
}

// BuildREMB encodes an estimate as a REMB packet.
func BuildREMB(senderSSRC uint32, uplinkKbps int, mediaSSRCs []uint32) ([]byte, error) {
	packet := &rtcp.ReceiverEstimatedMaximumBitrate{
		SenderSSRC: senderSSRC,
		Bitrate:    float32(uplinkKbps) * 1000,
		SSRCs:      mediaSSRCs,
	}
	return packet.Marshal()
}

// bpsToKbps saturates at math.MaxInt; NaN and negative rates read as 0.
func bpsToKbps(bps float32) int {
	if !(bps > 0) {
		return 0
	}
	kbps := float64(bps) / 1000
	if kbps >= math.MaxInt {
		return math.MaxInt
	}
	return int(kbps)
}
