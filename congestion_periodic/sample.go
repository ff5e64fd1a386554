package congestion_periodic

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sagernet/quic-go/congestion"
	E "github.com/sagernet/sing/common/exceptions"
)

// PacketRecord is the part of a sent packet the controller accounts for.
type PacketRecord struct {
	SentBytes congestion.ByteCount
	SentTime  time.Time
}

// Sample is one observation taken on a sampling tick. Samples are never
// modified after creation.
type Sample struct {
	// Time since the controller started.
	Elapsed time.Duration
	// Congestion window at the time of the sample.
	Window congestion.ByteCount
	// Bytes acknowledged during the interval, normalized to the reference
	// interval.
	AckedBytes float64
	LatestRTT  time.Duration
}

// MarshalJSON encodes the sample as
// [elapsed_seconds, window_bytes, acked_bytes, latest_rtt_seconds].
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{
		s.Elapsed.Seconds(),
		int64(s.Window),
		s.AckedBytes,
		s.LatestRTT.Seconds(),
	})
}

// UnmarshalJSON decodes the array form written by MarshalJSON.
func (s *Sample) UnmarshalJSON(content []byte) error {
	var fields []float64
	err := json.Unmarshal(content, &fields)
	if err != nil {
		return E.Cause(err, "decode sample")
	}
	if len(fields) != 4 {
		return E.New("decode sample: expected 4 fields, got ", len(fields))
	}
	if fields[0] < 0 || fields[1] < 0 || fields[2] < 0 || fields[3] < 0 {
		return E.New("decode sample: negative field")
	}
	*s = Sample{
		Elapsed:    secondsToDuration(fields[0]),
		Window:     congestion.ByteCount(fields[1]),
		AckedBytes: fields[2],
		LatestRTT:  secondsToDuration(fields[3]),
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}
