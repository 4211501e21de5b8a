package audio

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func wavChunk(id string, payload []byte) []byte {
	buf := make([]byte, 8, 8+len(payload))
	copy(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(payload)))
	return append(buf, payload...)
}

func pcmFmtChunk(sampleRate, channels, bits int) []byte {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint16(payload[0:2], 1) // PCM
	binary.LittleEndian.PutUint16(payload[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(payload[4:8], uint32(sampleRate))
	binary.LittleEndian.PutUint32(payload[8:12], uint32(sampleRate*channels*bits/8))
	binary.LittleEndian.PutUint16(payload[12:14], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(payload[14:16], uint16(bits))
	return payload
}

func TestDecodeWAV_SkipsOddMetadataChunk(t *testing.T) {
	samples := []byte{1, 0, 2, 0, 3, 0, 4, 0}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	buf.Write(wavChunk("LIST", []byte{9, 9, 9}))
	buf.WriteByte(0) // word-alignment padding
	buf.Write(wavChunk("fmt ", pcmFmtChunk(16000, 1, 16)))
	buf.Write(wavChunk("data", samples))

	stream, err := DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if stream.SampleRate != 16000 || stream.Channels != 1 || stream.BitsPerSample != 16 {
		t.Errorf("Unexpected format: %+v", stream)
	}
	if !bytes.Equal(stream.Samples, samples) {
		t.Errorf("Unexpected samples: %v", stream.Samples)
	}
}

func TestDecodeWAV_TruncatedAtChunkPadding(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	// The stream ends where the alignment padding byte should be.
	buf.Write(wavChunk("LIST", []byte{9, 9, 9}))

	if _, err := DecodeWAV(&buf); err == nil || !strings.Contains(err.Error(), "padding") {
		t.Errorf("Expected padding error for truncated stream, got %v", err)
	}
}
