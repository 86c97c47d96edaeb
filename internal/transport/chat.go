package transport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vidup/internal/vidup"
)

// chatTarget is a parsed destination: exactly one of id and username is set.
type chatTarget struct {
	id       int64
	username string
}

func parseChat(dest vidup.Destination) (chatTarget, error) {
	s := strings.TrimSpace(dest.ChatID)
	if s == "" {
		return chatTarget{}, fmt.Errorf("no chat_id configured")
	}
	if strings.HasPrefix(s, "@") {
		if len(s) == 1 {
			return chatTarget{}, fmt.Errorf("invalid chat username %q", s)
		}
		return chatTarget{username: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return chatTarget{}, fmt.Errorf("chat_id %q is neither a number nor an @username", s)
	}
	return chatTarget{id: id}, nil
}

func (c chatTarget) telego() telego.ChatID {
	if c.username != "" {
		return tu.Username(c.username)
	}
	return tu.ID(c.id)
}

// peer is the form gogram resolves: an int64 ID or a username string.
func (c chatTarget) peer() any {
	if c.username != "" {
		return c.username
	}
	return c.id
}
