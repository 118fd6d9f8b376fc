package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/pion/opus"
)

// maxDecodedBytes holds 120 ms of 48 kHz stereo S16LE, the largest Opus
// packet duration.
const maxDecodedBytes = 120 * 48 * 2 * 2

var ErrEmptyPacket = errors.New("audio: empty opus packet")

// Decoder turns Opus packets into 48 kHz mono PCM. It is not safe for
// concurrent use; each inbound track gets its own.
type Decoder struct {
	dec opus.Decoder
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{
		dec: opus.NewDecoder(),
		buf: make([]byte, maxDecodedBytes),
	}
}

func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, ErrEmptyPacket
	}
	bandwidth, stereo, err := d.dec.Decode(packet, d.buf)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}

	rate := bandwidth.SampleRate()
	channels := 1
	if stereo {
		channels = 2
	}
	samples := int(int64(rate) * int64(packetDuration(packet[0])) / int64(time.Second))
	if max := len(d.buf) / (2 * channels); samples > max {
		samples = max
	}

	pcm := make([]int16, samples)
	for i := range pcm {
		off := i * 2 * channels
		s := int32(int16(binary.LittleEndian.Uint16(d.buf[off:])))
		if stereo {
			s = (s + int32(int16(binary.LittleEndian.Uint16(d.buf[off+2:])))) / 2
		}
		pcm[i] = int16(s)
	}
	return resample(pcm, rate, SampleRate), nil
}

// packetDuration reads the frame size from the TOC byte (RFC 6716 3.1).
func packetDuration(toc byte) time.Duration {
	config := toc >> 3
	switch {
	case config < 12: // SILK
		return []time.Duration{10, 20, 40, 60}[config%4] * time.Millisecond
	case config < 16: // Hybrid
		return []time.Duration{10, 20}[config%2] * time.Millisecond
	default: // CELT
		return []time.Duration{2500, 5000, 10000, 20000}[config%4] * time.Microsecond
	}
}

// resample converts between rates with linear interpolation.
func resample(in []int16, from, to int) []int16 {
	if from == to || from <= 0 || len(in) == 0 {
		return in
	}
	n := len(in) * to / from
	out := make([]int16, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(in[j])*(1-frac) + float64(in[j+1])*frac)
	}
	return out
}
