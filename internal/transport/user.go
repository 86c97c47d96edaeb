package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amarnathcjd/gogram/telegram"

	"vidup/internal/vidup"
)

const (
	// UserMaxFileSize is the MTProto upload cap for regular accounts.
	UserMaxFileSize int64 = 2000 * 1024 * 1024
	// PremiumMaxFileSize is the cap for Telegram Premium accounts.
	PremiumMaxFileSize int64 = 4000 * 1024 * 1024
)

// progressInterval is how often, in seconds, gogram reports upload progress.
const progressInterval = 5

// permanentUserErrors are MTProto errors retrying cannot fix.
var permanentUserErrors = []string{
	"AUTH_KEY_UNREGISTERED",
	"CHAT_WRITE_FORBIDDEN",
	"CHAT_ADMIN_REQUIRED",
	"PEER_ID_INVALID",
	"USER_DEACTIVATED",
	"USER_BANNED_IN_CHANNEL",
	"FILE_PARTS_INVALID",
}

type mediaSender interface {
	SendMedia(peerID, media any, opts ...*telegram.MediaOptions) (*telegram.NewMessage, error)
}

// UserOptions configures the MTProto user transport.
type UserOptions struct {
	APIID       int32
	APIHash     string
	Phone       string
	SessionPath string
	Premium     bool
}

// UserTransport uploads as a logged-in Telegram user over MTProto, which
// allows files up to 2GB (4GB with Premium).
type UserTransport struct {
	client  *telegram.Client
	sender  mediaSender
	maxSize int64
}

// NewUserTransport connects and logs in. On first use Login prompts on the
// terminal for the code Telegram sends; the session file makes later runs
// non-interactive.
func NewUserTransport(opts UserOptions) (*UserTransport, error) {
	if opts.APIID == 0 || opts.APIHash == "" {
		return nil, fmt.Errorf("user transport requires api_id and api_hash")
	}
	if opts.Phone == "" {
		return nil, fmt.Errorf("user transport requires a phone number")
	}
	if opts.SessionPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.SessionPath), 0700); err != nil {
			return nil, fmt.Errorf("creating session directory: %w", err)
		}
	}

	client, err := telegram.NewClient(telegram.ClientConfig{
		AppID:   opts.APIID,
		AppHash: opts.APIHash,
		Session: opts.SessionPath,
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram client: %w", err)
	}
	if _, err := client.Conn(); err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	if _, err := client.Login(opts.Phone); err != nil {
		client.Disconnect()
		return nil, fmt.Errorf("logging in as %s: %w", opts.Phone, err)
	}

	maxSize := UserMaxFileSize
	if opts.Premium {
		maxSize = PremiumMaxFileSize
	}
	t := newUserTransport(client, maxSize)
	t.client = client
	return t, nil
}

func newUserTransport(sender mediaSender, maxSize int64) *UserTransport {
	return &UserTransport{sender: sender, maxSize: maxSize}
}

func (u *UserTransport) Mode() vidup.TransportMode { return vidup.ModeUser }

func (u *UserTransport) MaxFileSize() int64 { return u.maxSize }

// Upload sends path with SendMedia. gogram detects the video type from the
// file and sends it as media rather than as a document.
func (u *UserTransport) Upload(ctx context.Context, path string, dest vidup.Destination, opts vidup.UploadOptions) (*vidup.RemoteRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chat, err := parseChat(dest)
	if err != nil {
		return nil, u.permanent(path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, u.permanent(path, err)
	}
	if info.Size() > u.maxSize {
		return nil, u.permanent(path, fmt.Errorf("%w: %d bytes, limit %d", vidup.ErrFileTooLarge, info.Size(), u.maxSize))
	}

	name := opts.FileName
	if name == "" {
		name = filepath.Base(path)
	}
	mediaOpts := &telegram.MediaOptions{
		Caption:  opts.Caption,
		FileName: name,
	}
	if opts.Progress != nil {
		mediaOpts.ProgressManager = telegram.NewProgressManager(progressInterval, func(totalSize, currentSize int64) {
			opts.Progress(currentSize, totalSize)
		})
	}

	msg, err := u.sender.SendMedia(chat.peer(), path, mediaOpts)
	if err != nil {
		return nil, u.classify(path, err)
	}
	if msg == nil {
		return nil, &vidup.TransportError{Mode: vidup.ModeUser, Path: path, Err: fmt.Errorf("empty response from telegram")}
	}

	return &vidup.RemoteRef{
		Mode:       vidup.ModeUser,
		ChatID:     dest.ChatID,
		MessageIDs: []int64{int64(msg.ID)},
	}, nil
}

// Close disconnects the MTProto session.
func (u *UserTransport) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Disconnect()
}

func (u *UserTransport) permanent(path string, err error) error {
	return &vidup.TransportError{Mode: vidup.ModeUser, Path: path, Permanent: true, Err: err}
}

func (u *UserTransport) classify(path string, err error) error {
	te := &vidup.TransportError{Mode: vidup.ModeUser, Path: path, Err: err}
	if wait, ok := ParseRetryAfter(err.Error()); ok {
		te.RetryAfter = wait
		return te
	}
	for _, code := range permanentUserErrors {
		if telegram.MatchError(err, code) {
			te.Permanent = true
			break
		}
	}
	return te
}

var _ vidup.Transport = (*UserTransport)(nil)
