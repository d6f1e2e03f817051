package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)


func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           
	binary.Write(buf, binary.LittleEndian, uint16(1))            
	binary.Write(buf, binary.LittleEndian, uint16(1))            
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) 
	binary.Write(buf, binary.LittleEndian, uint16(2))            
	binary.Write(buf, binary.LittleEndian, uint16(16))           

	
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// ReadWavMono reads a canonical PCM WAV file and returns its samples as
// normalized float32 mono, plus the file's own sample rate. Only 16-bit
// PCM is supported, mirroring NewWavBuffer's own write format; stereo
// input is downmixed by averaging channels.
func ReadWavMono(path string) (samples []float32, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var riffHdr [12]byte
	if _, err := io.ReadFull(f, riffHdr[:]); err != nil {
		return nil, 0, fmt.Errorf("read wav: %w", err)
	}
	if string(riffHdr[0:4]) != "RIFF" || string(riffHdr[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("read wav: not a RIFF/WAVE file")
	}

	var channels, bitsPerSample uint16
	var dataStart int64 = -1
	var dataSize uint32

	for {
		var chunkHdr [8]byte
		if _, err := io.ReadFull(f, chunkHdr[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, fmt.Errorf("read wav: %w", err)
		}
		id := string(chunkHdr[0:4])
		size := binary.LittleEndian.Uint32(chunkHdr[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, 0, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			pos, err := f.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, 0, err
			}
			dataStart = pos
			dataSize = size
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, 0, err
			}
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, 0, err
			}
		}
		if size%2 == 1 {
			f.Seek(1, io.SeekCurrent) // chunks are word-aligned
		}
	}

	if dataStart < 0 {
		return nil, 0, fmt.Errorf("read wav: no data chunk found")
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("read wav: only 16-bit PCM is supported, got %d bits", bitsPerSample)
	}
	if channels == 0 {
		channels = 1
	}

	if _, err := f.Seek(dataStart, io.SeekStart); err != nil {
		return nil, 0, err
	}
	raw := make([]byte, dataSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, 0, fmt.Errorf("read wav data: %w", err)
	}

	frames := len(raw) / 2 / int(channels)
	samples = make([]float32, frames)
	idx := 0
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < int(channels); c++ {
			lo := raw[idx]
			hi := raw[idx+1]
			s := int16(lo) | int16(hi)<<8
			sum += int32(s)
			idx += 2
		}
		avg := float32(sum) / float32(channels)
		samples[i] = avg / 32768.0
	}

	return samples, sampleRate, nil
}
