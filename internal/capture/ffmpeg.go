package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const maxFrameSize = 10 * 1024 * 1024

// FFmpegSource decodes a camera with an ffmpeg child process that writes
// concatenated JPEG frames to stdout.
type FFmpegSource struct {
	// Input is a V4L2 device index ("0"), a file path or an RTSP/HTTP URL.
	Input string
	FPS   int
	// Binary defaults to "ffmpeg".
	Binary string
	// Resolver is the yt-dlp binary used for YouTube inputs.
	Resolver string
}

func (f *FFmpegSource) String() string {
	return f.Input
}

// Open starts ffmpeg. The returned reader owns the process.
func (f *FFmpegSource) Open(ctx context.Context) (FrameReader, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	input := f.Input
	if isYouTubeURL(input) {
		direct, err := resolveYouTubeURL(ctx, f.Resolver, input)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", input, err)
		}
		input = direct
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(input, f.FPS)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "input", f.Input, "output", scanner.Text())
		}
	}()

	return &ffmpegReader{
		cmd:    cmd,
		cancel: cancel,
		r:      bufio.NewReaderSize(stdout, 512*1024),
	}, nil
}

func ffmpegArgs(input string, fps int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	switch {
	case isDeviceIndex(input):
		args = append(args, "-f", "v4l2", "-i", "/dev/video"+input)
	case strings.HasPrefix(input, "rtsp://") || strings.HasPrefix(input, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000",
			"-i", input,
		)
	case strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
			"-i", input,
		)
	default:
		// Local files play at their native rate.
		args = append(args, "-re", "-i", input)
	}

	if fps > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", fps))
	}
	return append(args,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)
}

func isDeviceIndex(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0
}

type ffmpegReader struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	r      *bufio.Reader
	once   sync.Once
}

func (f *ffmpegReader) ReadFrame() ([]byte, error) {
	return readJPEG(f.r)
}

// Close kills ffmpeg and reaps it.
func (f *ffmpegReader) Close() error {
	f.once.Do(func() {
		f.cancel()
		if f.cmd.Process != nil {
			_ = f.cmd.Process.Kill()
		}
		_ = f.cmd.Wait()
	})
	return nil
}

// readJPEG returns the next SOI..EOI delimited image from r, skipping any
// bytes before the start marker.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	if err := findJPEGStart(r); err != nil {
		return nil, err
	}

	data := []byte{0xFF, 0xD8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		data = append(data, b)

		for b == 0xFF {
			if b, err = r.ReadByte(); err != nil {
				return nil, unexpected(err)
			}
			data = append(data, b)
			if b == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		for b == 0xFF {
			if b, err = r.ReadByte(); err != nil {
				return err
			}
			if b == 0xD8 {
				return nil
			}
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
