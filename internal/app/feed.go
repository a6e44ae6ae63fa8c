package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"pubg-account-watch/internal/detector"
	"pubg-account-watch/internal/monitor"
)

// Feed supplies submissions to the pipeline. The chat transport lives
// outside this repository; anything that can produce submissions can drive
// the service.
type Feed interface {
	Run(ctx context.Context, out chan<- monitor.Submission) error
}

// feedMessage is the wire form consumed by the stream feed: one JSON object
// per line, media referenced by file path.
type feedMessage struct {
	ChatID    int64    `json:"chat_id"`
	MessageID int64    `json:"message_id"`
	At        string   `json:"at"`
	Frames    []string `json:"frames"`
}

// StreamFeed reads newline-delimited JSON messages from a reader, typically
// stdin with the transport process piping into us. Unparseable lines and
// unreadable media files are logged and skipped, never fatal.
type StreamFeed struct {
	r      io.Reader
	logger zerolog.Logger
}

// NewStreamFeed wraps a reader as a submission feed.
func NewStreamFeed(r io.Reader, logger zerolog.Logger) *StreamFeed {
	return &StreamFeed{r: r, logger: logger.With().Str("component", "feed").Logger()}
}

// NewStdinFeed reads submissions from standard input.
func NewStdinFeed(logger zerolog.Logger) *StreamFeed {
	return NewStreamFeed(os.Stdin, logger)
}

// Run decodes messages until the reader ends or ctx is cancelled.
func (f *StreamFeed) Run(ctx context.Context, out chan<- monitor.Submission) error {
	scanner := bufio.NewScanner(f.r)
	// 单条消息可能携带较长的媒体路径列表
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		sub, err := f.parse(line)
		if err != nil {
			f.logger.Warn().Err(err).Msg("skipping malformed feed line")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- sub:
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("feed read: %w", err)
	}
	f.logger.Info().Msg("feed drained")
	return nil
}

func (f *StreamFeed) parse(line []byte) (monitor.Submission, error) {
	var msg feedMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return monitor.Submission{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.ChatID == 0 || msg.MessageID == 0 {
		return monitor.Submission{}, fmt.Errorf("message missing chat_id or message_id")
	}

	at := time.Now().UTC()
	if msg.At != "" {
		parsed, err := time.Parse(time.RFC3339, msg.At)
		if err != nil {
			return monitor.Submission{}, fmt.Errorf("parse timestamp: %w", err)
		}
		at = parsed.UTC()
	}

	frames := make([]detector.Frame, 0, len(msg.Frames))
	for i, path := range msg.Frames {
		data, err := os.ReadFile(path)
		if err != nil {
			// 媒体文件读不到时跳过该帧, 消息本身照常处理
			f.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable media file")
			continue
		}
		frames = append(frames, detector.Frame{Index: i, Data: data})
	}

	return monitor.Submission{
		SourceChatID: msg.ChatID,
		MessageID:    msg.MessageID,
		At:           at,
		Frames:       frames,
	}, nil
}
