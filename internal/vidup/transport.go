package vidup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TransportMode names a way of reaching Telegram.
type TransportMode string

const (
	// ModeBot uploads through the Bot API with a bot token.
	ModeBot TransportMode = "bot"
	// ModeUser uploads through MTProto as a logged-in user account.
	ModeUser TransportMode = "user"
	// ModeAuto picks bot for files under its cap and user otherwise.
	ModeAuto TransportMode = "auto"
)

// ErrFileTooLarge is wrapped by transports for files over their cap.
var ErrFileTooLarge = errors.New("file exceeds transport size limit")

// Destination identifies the chat uploads are sent to: a numeric chat ID or
// an @username.
type Destination struct {
	ChatID string
}

func (d Destination) String() string { return d.ChatID }

// UploadOptions carries per-upload presentation details.
type UploadOptions struct {
	FileName string
	Caption  string
	// Progress, if set, is called with bytes sent so far and the total.
	Progress func(sent, total int64)
}

// RemoteRef locates uploaded content on Telegram. Split uploads carry one
// message ID per part, in order.
type RemoteRef struct {
	Mode       TransportMode
	ChatID     string
	MessageIDs []int64
}

// String renders the ref as "mode:chat/id,id,...".
func (r *RemoteRef) String() string {
	if r == nil {
		return ""
	}
	ids := make([]string, len(r.MessageIDs))
	for i, id := range r.MessageIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s:%s/%s", r.Mode, r.ChatID, strings.Join(ids, ","))
}

// Transport sends one file to a destination.
type Transport interface {
	Mode() TransportMode
	// MaxFileSize is the largest single file the transport accepts.
	MaxFileSize() int64
	Upload(ctx context.Context, path string, dest Destination, opts UploadOptions) (*RemoteRef, error)
	Close() error
}

// TransportError describes a failed upload. RetryAfter is set when Telegram
// asked the client to wait before trying again. Permanent errors are not
// retried.
type TransportError struct {
	Mode       TransportMode
	Path       string
	RetryAfter time.Duration
	Permanent  bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s upload of %s: %v (retry after %s)", e.Mode, e.Path, e.Err, e.RetryAfter)
	}
	return fmt.Sprintf("%s upload of %s: %v", e.Mode, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
