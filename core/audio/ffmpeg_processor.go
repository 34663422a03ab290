package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"TrackLens/logger"
)

// FFmpegProcessor decodes any container ffmpeg understands into float PCM.
type FFmpegProcessor struct {
	ffmpegPath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

func (p *FFmpegProcessor) ffprobePath() string {
	dir, base := filepath.Split(p.ffmpegPath)
	return dir + strings.Replace(base, "ffmpeg", "ffprobe", 1)
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// StreamInfo is the subset of ffprobe output the decoder needs.
type StreamInfo struct {
	Codec      string
	SampleRate int
	Channels   int
	Duration   float64
}

// Probe inspects the first audio stream of inputFile.
func (p *FFmpegProcessor) Probe(ctx context.Context, inputFile string) (*StreamInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels:format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath(), args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w", inputFile, err)
	}
	if len(probeData.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found in %s", inputFile)
	}

	stream := probeData.Streams[0]
	rate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q in %s", stream.SampleRate, inputFile)
	}

	info := &StreamInfo{Codec: stream.CodecName, SampleRate: rate, Channels: stream.Channels}
	if info.Channels <= 0 {
		info.Channels = 1
	}
	if probeData.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probeData.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info, nil
}

// Decode implements Decoder. The native sample rate and channel layout are
// preserved; ffmpeg only converts the sample format to 32-bit float.
func (p *FFmpegProcessor) Decode(ctx context.Context, inputFile string) (*Buffer, error) {
	info, err := p.Probe(ctx, inputFile)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner", "-v", "error",
		"-i", inputFile,
		"-map", "0:a:0",
		"-ac", strconv.Itoa(info.Channels),
		"-ar", strconv.Itoa(info.SampleRate),
		"-f", "f32le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	logger.Debug("executing ffmpeg decode",
		logger.String("file", inputFile),
		logger.String("codec", info.Codec),
		logger.Int("sampleRate", info.SampleRate),
		logger.Int("channels", info.Channels))

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}

	data, err := parseFloat32LE(out.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to read decoded samples for %s: %w", inputFile, err)
	}
	if len(data) < info.Channels {
		return nil, ErrNoSamples
	}

	return &Buffer{Data: data, Channels: info.Channels, SampleRate: info.SampleRate}, nil
}

func parseFloat32LE(raw []byte) ([]float64, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("unexpected byte length %d", len(raw))
	}
	out := make([]float64, len(raw)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		v := float64(math.Float32frombits(bits))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// EncodeFloat32LE is the inverse of parseFloat32LE, used to feed PCM to
// external tools over a pipe.
func EncodeFloat32LE(samples []float64) []byte {
	out := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}
