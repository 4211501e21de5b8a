// Package audio decodes captured audio and splits it into
// transcription-sized chunks with optional overlap.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Stream is decoded PCM audio ready for chunking. Samples are raw
// little-endian PCM bytes as produced by the extractor (16-bit mono).
type Stream struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       []byte
}

func (s *Stream) bytesPerFrame() int {
	return s.Channels * s.BitsPerSample / 8
}

// TotalFrames returns the number of sample frames in the stream.
func (s *Stream) TotalFrames() int {
	bpf := s.bytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return len(s.Samples) / bpf
}

// DurationSeconds returns the stream length in seconds.
func (s *Stream) DurationSeconds() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.TotalFrames()) / float64(s.SampleRate)
}

// DecodeWAV reads a PCM WAV stream. Only uncompressed PCM is supported;
// that is the only format the extractor emits.
func DecodeWAV(r io.Reader) (*Stream, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV stream")
	}

	stream := &Stream{}
	haveFormat := false

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(fmtChunk) < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", len(fmtChunk))
			}
			audioFormat := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported WAV format code %d (want PCM)", audioFormat)
			}
			stream.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			stream.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			stream.BitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			haveFormat = true

		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("WAV data chunk before fmt chunk")
			}
			stream.Samples = make([]byte, chunkSize)
			if _, err := io.ReadFull(r, stream.Samples); err != nil {
				return nil, fmt.Errorf("failed to read sample data: %w", err)
			}
			return stream, nil

		default:
			// Skip LIST and other metadata chunks.
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return nil, fmt.Errorf("failed to skip %q chunk: %w", chunkID, err)
			}
		}
		// Chunks are word aligned.
		if chunkSize%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return nil, fmt.Errorf("failed to skip %q chunk padding: %w", chunkID, err)
			}
		}
	}

	return nil, fmt.Errorf("WAV stream has no data chunk")
}

// EncodeWAV writes the stream back out as a PCM WAV file, used when
// handing chunks to a transcription service that expects audio/wav.
func EncodeWAV(w io.Writer, s *Stream) error {
	dataLen := len(s.Samples)
	byteRate := s.SampleRate * s.Channels * s.BitsPerSample / 8
	blockAlign := s.Channels * s.BitsPerSample / 8

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(s.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(s.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(s.BitsPerSample))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	if _, err := w.Write(s.Samples); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}
