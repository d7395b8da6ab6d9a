package audiobook

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// Segment is the audio for one page.
type Segment struct {
	Page int
	Path string
}

type wavFormat struct {
	sampleRate, bitDepth, channels, audioFormat int
}

// Assemble concatenates segments in page order into target and removes the
// segment files. It writes through a temp file and renames, so target either
// holds the complete audio or does not exist. On failure the segments are
// left in place. It returns the duration in seconds.
func Assemble(segments []Segment, target string) (float64, error) {
	if len(segments) == 0 {
		return 0, errors.New("assemble: no audio segments")
	}
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Page < ordered[j].Page })

	tmp := fmt.Sprintf("%s.tmp-%s", target, uuid.NewString())
	frames, format, err := concatWAV(ordered, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("assemble: publish %s: %w", target, err)
	}

	for _, seg := range ordered {
		_ = os.Remove(seg.Path)
	}
	return float64(frames) / float64(format.sampleRate), nil
}

func concatWAV(segments []Segment, dst string) (int, wavFormat, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, wavFormat{}, fmt.Errorf("assemble: create output: %w", err)
	}
	defer out.Close()

	var (
		enc    *wav.Encoder
		format wavFormat
		frames int
	)
	for _, seg := range segments {
		in, err := os.Open(seg.Path)
		if err != nil {
			return 0, format, fmt.Errorf("assemble: open page %d: %w", seg.Page, err)
		}
		dec := wav.NewDecoder(in)
		if !dec.IsValidFile() {
			in.Close()
			return 0, format, fmt.Errorf("assemble: page %d is not a valid wav file", seg.Page)
		}
		buf, err := dec.FullPCMBuffer()
		in.Close()
		if err != nil {
			return 0, format, fmt.Errorf("assemble: decode page %d: %w", seg.Page, err)
		}

		f := wavFormat{
			sampleRate:  int(dec.SampleRate),
			bitDepth:    int(dec.BitDepth),
			channels:    int(dec.NumChans),
			audioFormat: int(dec.WavAudioFormat),
		}
		if enc == nil {
			format = f
			enc = wav.NewEncoder(out, f.sampleRate, f.bitDepth, f.channels, f.audioFormat)
		} else if f != format {
			return 0, format, fmt.Errorf("assemble: page %d format %+v differs from %+v", seg.Page, f, format)
		}

		if err := enc.Write(buf); err != nil {
			return 0, format, fmt.Errorf("assemble: write page %d: %w", seg.Page, err)
		}
		frames += len(buf.Data) / f.channels
	}

	if err := enc.Close(); err != nil {
		return 0, format, fmt.Errorf("assemble: finalize: %w", err)
	}
	return frames, format, nil
}
