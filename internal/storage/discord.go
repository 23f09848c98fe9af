package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	logx "remindbot/pkg/logx"
)

const (
	discordPrefix      = "REMINDERS_DATA"
	discordAttachName  = "reminders.json"
	discordInlineLimit = 1900
	discordScanLimit   = 100
)

// discordBlob keeps the snapshot in a bot-authored message of a channel.
//
// Small documents are stored inline after a marker line; larger ones as a
// reminders.json attachment. The latest marked message is edited in place
// and older marked messages are removed best-effort.
type discordBlob struct {
	log       logx.Logger
	s         *discordgo.Session
	channelID string

	mu    sync.Mutex
	botID string
}

func newDiscordBlob(cfg Config, log logx.Logger) (*discordBlob, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("storage.token (or DISCORD_TOKEN) is required for discord driver")
	}
	ch := strings.TrimSpace(cfg.ChannelID)
	if ch == "" {
		return nil, errors.New("storage.channel_id (or REMINDERS_CHANNEL_ID) is required for discord driver")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &discordBlob{log: log, s: s, channelID: ch}, nil
}

func (b *discordBlob) self(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.botID != "" {
		return b.botID, nil
	}
	u, err := b.s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("resolve bot user: %w", err)
	}
	b.botID = u.ID
	return b.botID, nil
}

// marked returns bot messages carrying a snapshot, newest first.
func (b *discordBlob) marked(ctx context.Context) ([]*discordgo.Message, error) {
	botID, err := b.self(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := b.s.ChannelMessages(b.channelID, discordScanLimit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return filterSnapshotMessages(msgs, botID), nil
}

func filterSnapshotMessages(msgs []*discordgo.Message, botID string) []*discordgo.Message {
	var out []*discordgo.Message
	for _, m := range msgs {
		if m == nil || m.Author == nil || m.Author.ID != botID {
			continue
		}
		if strings.HasPrefix(m.Content, discordPrefix) || snapshotAttachment(m) != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func snapshotAttachment(m *discordgo.Message) *discordgo.MessageAttachment {
	for _, a := range m.Attachments {
		if a != nil && a.Filename == discordAttachName {
			return a
		}
	}
	return nil
}

func (b *discordBlob) Load(ctx context.Context) ([]byte, error) {
	msgs, err := b.marked(ctx)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	latest := msgs[0]
	if att := snapshotAttachment(latest); att != nil {
		return b.download(ctx, att.URL)
	}
	return inlineDocument(latest.Content), nil
}

func inlineDocument(content string) []byte {
	raw := strings.TrimSpace(strings.TrimPrefix(content, discordPrefix))
	if raw == "" {
		return nil
	}
	return []byte(raw)
}

func (b *discordBlob) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := b.s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attachment: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// snapshotPayload decides how a document is written: inline content, or a
// marker line plus an indented attachment.
func snapshotPayload(data []byte) (content string, file []byte) {
	inline := discordPrefix + "\n" + string(data)
	if len(inline) <= discordInlineLimit {
		return inline, nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return discordPrefix + " (attached file)", data
	}
	return discordPrefix + " (attached file)", pretty.Bytes()
}

func (b *discordBlob) Save(ctx context.Context, data []byte) error {
	msgs, err := b.marked(ctx)
	if err != nil {
		return err
	}
	content, file := snapshotPayload(data)

	var kept *discordgo.Message
	if len(msgs) > 0 {
		edit := discordgo.NewMessageEdit(b.channelID, msgs[0].ID).SetContent(content)
		empty := []*discordgo.MessageAttachment{}
		edit.Attachments = &empty
		if file != nil {
			edit.Files = []*discordgo.File{{Name: discordAttachName, ContentType: "application/json", Reader: bytes.NewReader(file)}}
		}
		kept, err = b.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
		if err != nil {
			b.log.Warn("snapshot message edit failed, sending a new one", logx.Err(err))
			kept = nil
		}
	}
	if kept == nil {
		send := &discordgo.MessageSend{Content: content}
		if file != nil {
			send.Files = []*discordgo.File{{Name: discordAttachName, ContentType: "application/json", Reader: bytes.NewReader(file)}}
		}
		kept, err = b.s.ChannelMessageSendComplex(b.channelID, send, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
	}

	for _, m := range msgs {
		if m.ID == kept.ID {
			continue
		}
		if derr := b.s.ChannelMessageDelete(b.channelID, m.ID, discordgo.WithContext(ctx)); derr != nil {
			b.log.Warn("stale snapshot message not deleted", logx.String("message_id", m.ID), logx.Err(derr))
		}
	}
	return nil
}

func (b *discordBlob) Close() error { return nil }
