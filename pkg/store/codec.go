package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// ErrCorrupt is returned when stored bytes cannot be decoded.
var ErrCorrupt = errors.New("store: corrupt spectrum record")

// spectrum record header: RT (8) + MS level (4) + index (8) + peak count (4)
const headerSize = 8 + 4 + 8 + 4

// EncodeFloat64s encodes values as a little-endian float64 blob
func EncodeFloat64s(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64s decodes a little-endian float64 blob
func DecodeFloat64s(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("%w: blob length %d is not a multiple of 8", ErrCorrupt, len(blob))
	}
	values := make([]float64, len(blob)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return values, nil
}

// PeakArrays splits peaks into parallel m/z, intensity and IM arrays.
func PeakArrays(peaks []core.Peak) (mz, intensity, im []float64) {
	mz = make([]float64, len(peaks))
	intensity = make([]float64, len(peaks))
	im = make([]float64, len(peaks))
	for i, p := range peaks {
		mz[i], intensity[i], im[i] = p.MZ, p.Intensity, p.IM
	}
	return mz, intensity, im
}

// JoinPeaks is the inverse of PeakArrays.
func JoinPeaks(mz, intensity, im []float64) ([]core.Peak, error) {
	if len(mz) != len(intensity) || len(mz) != len(im) {
		return nil, fmt.Errorf("%w: array lengths differ (%d/%d/%d)", ErrCorrupt, len(mz), len(intensity), len(im))
	}
	peaks := make([]core.Peak, len(mz))
	for i := range peaks {
		peaks[i] = core.Peak{MZ: mz[i], Intensity: intensity[i], IM: im[i]}
	}
	return peaks, nil
}

// EncodeSpectrum serializes a spectrum into one self-describing record.
func EncodeSpectrum(s *core.Spectrum) []byte {
	buf := make([]byte, headerSize+len(s.Peaks)*24)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(s.RT))
	binary.LittleEndian.PutUint32(buf[8:], uint32(s.MSLevel))
	binary.LittleEndian.PutUint64(buf[12:], uint64(s.Index))
	binary.LittleEndian.PutUint32(buf[20:], uint32(len(s.Peaks)))

	off := headerSize
	for _, p := range s.Peaks {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p.MZ))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(p.Intensity))
		binary.LittleEndian.PutUint64(buf[off+16:], math.Float64bits(p.IM))
		off += 24
	}
	return buf
}

// DecodeSpectrum parses a record written by EncodeSpectrum.
func DecodeSpectrum(buf []byte) (*core.Spectrum, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(buf))
	}
	n := int(binary.LittleEndian.Uint32(buf[20:]))
	if len(buf) != headerSize+n*24 {
		return nil, fmt.Errorf("%w: expected %d peaks in %d bytes", ErrCorrupt, n, len(buf))
	}

	s := &core.Spectrum{
		RT:           math.Float64frombits(binary.LittleEndian.Uint64(buf[0:])),
		MSLevel:      int(binary.LittleEndian.Uint32(buf[8:])),
		Index:        int(binary.LittleEndian.Uint64(buf[12:])),
		Peaks:        make([]core.Peak, n),
		SourceFormat: "binned",
	}
	off := headerSize
	for i := range s.Peaks {
		s.Peaks[i] = core.Peak{
			MZ:        math.Float64frombits(binary.LittleEndian.Uint64(buf[off:])),
			Intensity: math.Float64frombits(binary.LittleEndian.Uint64(buf[off+8:])),
			IM:        math.Float64frombits(binary.LittleEndian.Uint64(buf[off+16:])),
		}
		off += 24
	}
	return s, nil
}
