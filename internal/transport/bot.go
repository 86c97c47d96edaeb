package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"

	"vidup/internal/vidup"
)

const (
	// BotMaxFileSize is the Bot API upload cap on api.telegram.org.
	BotMaxFileSize int64 = 50 * 1000 * 1000
	// LocalBotMaxFileSize is the cap on a self-hosted Bot API server.
	LocalBotMaxFileSize int64 = 2000 * 1000 * 1000
)

type videoSender interface {
	SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error)
}

// BotTransport uploads through the Telegram Bot API.
type BotTransport struct {
	sender  videoSender
	maxSize int64
}

// NewBotTransport creates a Bot API transport. apiServer, if set, points at
// a self-hosted Bot API server, which accepts much larger files.
func NewBotTransport(token, apiServer string) (*BotTransport, error) {
	opts := []telego.BotOption{telego.WithDiscardLogger()}
	maxSize := BotMaxFileSize
	if apiServer != "" {
		opts = append(opts, telego.WithAPIServer(apiServer))
		maxSize = LocalBotMaxFileSize
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bot client: %w", err)
	}
	return newBotTransport(bot, maxSize), nil
}

func newBotTransport(sender videoSender, maxSize int64) *BotTransport {
	return &BotTransport{sender: sender, maxSize: maxSize}
}

func (b *BotTransport) Mode() vidup.TransportMode { return vidup.ModeBot }

func (b *BotTransport) MaxFileSize() int64 { return b.maxSize }

// Upload sends path as a streamable video.
func (b *BotTransport) Upload(ctx context.Context, path string, dest vidup.Destination, opts vidup.UploadOptions) (*vidup.RemoteRef, error) {
	chat, err := parseChat(dest)
	if err != nil {
		return nil, b.permanent(path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, b.permanent(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, b.permanent(path, err)
	}
	if info.Size() > b.maxSize {
		return nil, b.permanent(path, fmt.Errorf("%w: %d bytes, limit %d", vidup.ErrFileTooLarge, info.Size(), b.maxSize))
	}

	name := opts.FileName
	if name == "" {
		name = filepath.Base(path)
	}

	msg, err := b.sender.SendVideo(ctx, &telego.SendVideoParams{
		ChatID:            chat.telego(),
		Video:             telego.InputFile{File: newProgressReader(f, name, info.Size(), opts.Progress)},
		Caption:           opts.Caption,
		SupportsStreaming: true,
	})
	if err != nil {
		return nil, b.classify(path, err)
	}
	if msg == nil {
		return nil, &vidup.TransportError{Mode: vidup.ModeBot, Path: path, Err: errors.New("empty response from bot api")}
	}

	return &vidup.RemoteRef{
		Mode:       vidup.ModeBot,
		ChatID:     dest.ChatID,
		MessageIDs: []int64{int64(msg.MessageID)},
	}, nil
}

func (b *BotTransport) Close() error { return nil }

func (b *BotTransport) permanent(path string, err error) error {
	return &vidup.TransportError{Mode: vidup.ModeBot, Path: path, Permanent: true, Err: err}
}

// classify maps Bot API failures onto TransportError. Rate limits carry the
// requested wait; client errors other than 429 are not worth retrying.
func (b *BotTransport) classify(path string, err error) error {
	te := &vidup.TransportError{Mode: vidup.ModeBot, Path: path, Err: err}

	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0:
			te.RetryAfter = secondsDuration(apiErr.Parameters.RetryAfter)
		case apiErr.ErrorCode == http.StatusTooManyRequests:
			te.RetryAfter = floodFallback
		case apiErr.ErrorCode == http.StatusRequestEntityTooLarge:
			te.Permanent = true
			te.Err = fmt.Errorf("%w: %v", vidup.ErrFileTooLarge, err)
		case apiErr.ErrorCode >= 400 && apiErr.ErrorCode < 500:
			te.Permanent = true
		}
		return te
	}

	if wait, ok := ParseRetryAfter(err.Error()); ok {
		te.RetryAfter = wait
	}
	return te
}

var _ vidup.Transport = (*BotTransport)(nil)
